// Package authflow implements the login flows that end in a stored,
// connected account: phone code, QR code and credential import.
package authflow

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/tgtoolkit/internal/models"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

// Sessions is the part of the session registry the flows depend on.
type Sessions interface {
	NewHandle(ctx context.Context, credential string) (transport.Conn, error)
	Register(ctx context.Context, a *models.Account, credential string, c transport.Conn) (*models.AccountSummary, error)
	DecodeSessionFile(ctx context.Context, path string) (string, error)
}

func newAccount(id *transport.Identity, name string, method models.AuthMethod) *models.Account {
	return &models.Account{
		Name:         name,
		AuthMethod:   method,
		RemoteUserID: id.ID,
		Username:     id.Username,
		Phone:        id.Phone,
		FirstName:    id.FirstName,
		LastName:     id.LastName,
		IsBot:        id.IsBot,
	}
}

func orDefault(name, def string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return def
}

func lastDigits(phone string, n int) string {
	if len(phone) <= n {
		return phone
	}
	return phone[len(phone)-n:]
}

func importedName(id *transport.Identity) string {
	if id.Username != "" {
		return "Imported " + id.Username
	}
	return "Imported " + id.FirstName
}

func disconnect(ctx context.Context, c transport.Conn) {
	if c != nil {
		_ = c.Disconnect(context.WithoutCancel(ctx))
	}
}
