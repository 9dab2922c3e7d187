package authflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

type Importer struct {
	sessions Sessions
	log      logging.Logger
}

func NewImporter(s Sessions, l logging.Logger) *Importer {
	return &Importer{sessions: s, log: l.With("module", "authflow")}
}

// ImportString stores an existing session string as a new active account.
func (i *Importer) ImportString(ctx context.Context, credential, name string) (*models.AccountSummary, error) {
	return i.importCredential(ctx, credential, name, models.AuthSessionString)
}

// ImportFile converts a session file on disk and imports the result.
func (i *Importer) ImportFile(ctx context.Context, path, name string) (*models.AccountSummary, error) {
	cred, err := i.sessions.DecodeSessionFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return i.importCredential(ctx, cred, name, models.AuthSessionFile)
}

// ImportFileBytes imports an uploaded session file. The bytes are staged in
// a temporary file that is removed before returning.
func (i *Importer) ImportFileBytes(ctx context.Context, data []byte, name string) (*models.AccountSummary, error) {
	if len(data) == 0 {
		return nil, common.Validationf("session file is empty")
	}
	f, err := os.CreateTemp("", "tg_session_*.session")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return i.ImportFile(ctx, f.Name(), name)
}

// ImportBotToken logs in as a bot and stores the resulting session.
func (i *Importer) ImportBotToken(ctx context.Context, token, name string) (*models.AccountSummary, error) {
	if strings.TrimSpace(token) == "" {
		return nil, common.Validationf("bot token is required")
	}
	c, err := i.sessions.NewHandle(ctx, "")
	if err != nil {
		return nil, err
	}
	self, err := c.SignInBot(ctx, token)
	if err != nil {
		disconnect(ctx, c)
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidCredential, err)
	}
	cred, err := c.ExportCredential(ctx)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}

	acc := newAccount(self, orDefault(name, "Bot "+self.Username), models.AuthBotToken)
	acc.IsBot = true
	return i.register(ctx, acc, cred, c)
}

func (i *Importer) importCredential(ctx context.Context, cred, name string, method models.AuthMethod) (*models.AccountSummary, error) {
	if strings.TrimSpace(cred) == "" {
		return nil, common.Validationf("session string is required")
	}
	c, err := i.sessions.NewHandle(ctx, cred)
	if err != nil {
		return nil, err
	}

	ok, err := c.IsAuthorized(ctx)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}
	if !ok {
		disconnect(ctx, c)
		return nil, fmt.Errorf("%w: session is invalid or expired", common.ErrInvalidCredential)
	}

	self, err := c.Self(ctx)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}
	return i.register(ctx, newAccount(self, orDefault(name, importedName(self)), method), cred, c)
}

func (i *Importer) register(ctx context.Context, acc *models.Account, cred string, c transport.Conn) (*models.AccountSummary, error) {
	sum, err := i.sessions.Register(ctx, acc, cred, c)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}
	i.log.Info(ctx, "account imported", "account_id", sum.ID, "auth_method", acc.AuthMethod)
	return sum, nil
}
