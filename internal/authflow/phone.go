package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

type pendingPhone struct {
	conn  transport.Conn
	nonce string
	name  string
}

// CodeRequest is returned once a login code has been sent.
type CodeRequest struct {
	Phone string `json:"phone"`
	Nonce string `json:"phone_code_hash"`
}

// PhoneFlow drives phone number + code sign-in. Pending logins are keyed by
// phone number and live only in memory.
type PhoneFlow struct {
	sessions Sessions
	log      logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingPhone
}

func NewPhoneFlow(s Sessions, l logging.Logger) *PhoneFlow {
	return &PhoneFlow{
		sessions: s,
		log:      l.With("module", "authflow"),
		pending:  make(map[string]*pendingPhone),
	}
}

// RequestCode opens a fresh handle and asks Telegram to send a login code.
// A previous pending login for the same phone is discarded.
func (f *PhoneFlow) RequestCode(ctx context.Context, phone, name string) (*CodeRequest, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, common.Validationf("phone is required")
	}

	c, err := f.sessions.NewHandle(ctx, "")
	if err != nil {
		return nil, err
	}
	nonce, err := c.RequestCode(ctx, phone)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}

	p := &pendingPhone{conn: c, nonce: nonce, name: orDefault(name, "Account "+lastDigits(phone, 4))}

	f.mu.Lock()
	prev := f.pending[phone]
	f.pending[phone] = p
	f.mu.Unlock()
	if prev != nil {
		disconnect(ctx, prev.conn)
	}

	f.log.Info(ctx, "login code requested", "phone", common.MaskPhone(phone))
	return &CodeRequest{Phone: phone, Nonce: nonce}, nil
}

// VerifyCode completes a pending login. ErrTwoFactorRequired keeps the
// pending entry so the caller can retry with a password.
func (f *PhoneFlow) VerifyCode(ctx context.Context, phone, code, password string) (*models.AccountSummary, error) {
	phone = strings.TrimSpace(phone)

	f.mu.Lock()
	p, ok := f.pending[phone]
	f.mu.Unlock()
	if !ok {
		return nil, common.ErrNoPendingAuth
	}

	self, err := p.conn.SignIn(ctx, phone, code, p.nonce, password)
	if errors.Is(err, common.ErrTwoFactorRequired) {
		return nil, err
	}

	var sum *models.AccountSummary
	if err == nil {
		sum, err = f.complete(ctx, p, phone, self)
	}

	f.mu.Lock()
	if f.pending[phone] == p {
		delete(f.pending, phone)
	}
	f.mu.Unlock()

	if err != nil {
		disconnect(ctx, p.conn)
		f.log.Warn(ctx, "phone login failed", "phone", common.MaskPhone(phone), "error", err)
		return nil, err
	}
	return sum, nil
}

func (f *PhoneFlow) complete(ctx context.Context, p *pendingPhone, phone string, self *transport.Identity) (*models.AccountSummary, error) {
	cred, err := p.conn.ExportCredential(ctx)
	if err != nil {
		return nil, err
	}
	acc := newAccount(self, p.name, models.AuthPhoneCode)
	acc.Phone = phone
	sum, err := f.sessions.Register(ctx, acc, cred, p.conn)
	if err != nil {
		return nil, err
	}
	f.log.Info(ctx, "phone login completed", "account_id", sum.ID, "phone", common.MaskPhone(phone))
	return sum, nil
}

// Pending reports whether a login is waiting for a code for phone.
func (f *PhoneFlow) Pending(phone string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[strings.TrimSpace(phone)]
	return ok
}

// Close drops every pending login.
func (f *PhoneFlow) Close(ctx context.Context) {
	f.mu.Lock()
	pending := f.pending
	f.pending = make(map[string]*pendingPhone)
	f.mu.Unlock()
	for _, p := range pending {
		disconnect(ctx, p.conn)
	}
}
