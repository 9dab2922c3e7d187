package authflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

const (
	DefaultQRTimeout  = 120 * time.Second
	DefaultQRPollWait = 3 * time.Second
	qrImageSize       = 256
)

type QRState string

const (
	QRPending QRState = "pending"
	QRSuccess QRState = "success"
	QRError   QRState = "error"
	QRExpired QRState = "expired"
)

// QRLogin is what Generate hands back to the caller for rendering.
type QRLogin struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	PNG       []byte    `json:"qr_png"`
	ExpiresAt time.Time `json:"expires_at"`
}

type QRStatus struct {
	Status  QRState                `json:"status"`
	Rescan  bool                   `json:"rescan,omitempty"`
	URL     string                 `json:"url,omitempty"`
	PNG     []byte                 `json:"qr_png,omitempty"`
	Account *models.AccountSummary `json:"account,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

type qrEntry struct {
	conn   transport.Conn
	ticket transport.QRTicket
	name   string
	timer  *time.Timer

	// polling serialises Poll calls for one token.
	polling sync.Mutex
}

type QRFlow struct {
	sessions Sessions
	importer *Importer
	log      logging.Logger
	timeout  time.Duration
	pollWait time.Duration

	mu      sync.Mutex
	pending map[string]*qrEntry
}

// NewQRFlow builds a QR login flow. Zero durations select the defaults.
func NewQRFlow(s Sessions, imp *Importer, timeout, pollWait time.Duration, l logging.Logger) *QRFlow {
	if timeout <= 0 {
		timeout = DefaultQRTimeout
	}
	if pollWait <= 0 {
		pollWait = DefaultQRPollWait
	}
	return &QRFlow{
		sessions: s,
		importer: imp,
		log:      l.With("module", "authflow"),
		timeout:  timeout,
		pollWait: pollWait,
		pending:  make(map[string]*qrEntry),
	}
}

// Generate starts a QR login. The token stays valid until the login
// resolves or the flow timeout passes, whichever comes first.
func (f *QRFlow) Generate(ctx context.Context, name string) (*QRLogin, error) {
	c, err := f.sessions.NewHandle(ctx, "")
	if err != nil {
		return nil, err
	}
	t, err := c.StartQR(ctx)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}
	png, err := qrcode.Encode(t.URL(), qrcode.Medium, qrImageSize)
	if err != nil {
		disconnect(ctx, c)
		return nil, err
	}

	token := uuid.NewString()
	e := &qrEntry{conn: c, ticket: t, name: name}

	f.mu.Lock()
	f.pending[token] = e
	e.timer = time.AfterFunc(f.timeout, func() { f.expire(token, e) })
	f.mu.Unlock()

	f.log.Info(ctx, "qr login started", "expires_in", f.timeout.String())
	return &QRLogin{Token: token, URL: t.URL(), PNG: png, ExpiresAt: time.Now().Add(f.timeout)}, nil
}

func (f *QRFlow) expire(token string, e *qrEntry) {
	if !f.drop(token, e) {
		return
	}
	disconnect(context.Background(), e.conn)
	f.log.Info(context.Background(), "qr login expired")
}

// drop removes token if it still maps to e.
func (f *QRFlow) drop(token string, e *qrEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending[token] != e {
		return false
	}
	delete(f.pending, token)
	e.timer.Stop()
	return true
}

// Poll waits up to the poll interval for the login to resolve. Unknown or
// timed out tokens report QRExpired.
func (f *QRFlow) Poll(ctx context.Context, token string) (*QRStatus, error) {
	f.mu.Lock()
	e, ok := f.pending[token]
	f.mu.Unlock()
	if !ok {
		return &QRStatus{Status: QRExpired}, nil
	}

	e.polling.Lock()
	defer e.polling.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, f.pollWait)
	err := e.ticket.Wait(waitCtx)
	cancel()

	switch {
	case err == nil:
		return f.finish(ctx, token, e), nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return f.stillPending(ctx, token, e), nil
	default:
		return f.fail(ctx, token, e, err), nil
	}
}

func (f *QRFlow) stillPending(ctx context.Context, token string, e *qrEntry) *QRStatus {
	if time.Now().Before(e.ticket.Expires()) {
		return &QRStatus{Status: QRPending}
	}
	if err := e.ticket.Recreate(ctx); err != nil {
		return f.fail(ctx, token, e, err)
	}
	png, err := qrcode.Encode(e.ticket.URL(), qrcode.Medium, qrImageSize)
	if err != nil {
		return f.fail(ctx, token, e, err)
	}
	return &QRStatus{Status: QRPending, Rescan: true, URL: e.ticket.URL(), PNG: png}
}

func (f *QRFlow) finish(ctx context.Context, token string, e *qrEntry) *QRStatus {
	cred, err := e.conn.ExportCredential(ctx)
	if err != nil {
		return f.fail(ctx, token, e, err)
	}
	sum, err := f.importer.importCredential(ctx, cred, e.name, models.AuthQRCode)
	if err != nil {
		return f.fail(ctx, token, e, err)
	}
	if f.drop(token, e) {
		disconnect(ctx, e.conn)
	}
	f.log.Info(ctx, "qr login completed", "account_id", sum.ID)
	return &QRStatus{Status: QRSuccess, Account: sum}
}

func (f *QRFlow) fail(ctx context.Context, token string, e *qrEntry, err error) *QRStatus {
	if f.drop(token, e) {
		disconnect(ctx, e.conn)
	}
	f.log.Warn(ctx, "qr login failed", "error", err)
	msg := err.Error()
	if errors.Is(err, common.ErrTwoFactorRequired) {
		msg = "two-factor authentication is enabled on this account; use phone login with a password"
	}
	return &QRStatus{Status: QRError, Error: msg}
}

// Close cancels every pending QR login.
func (f *QRFlow) Close(ctx context.Context) {
	f.mu.Lock()
	pending := f.pending
	f.pending = make(map[string]*qrEntry)
	f.mu.Unlock()
	for _, e := range pending {
		e.timer.Stop()
		disconnect(ctx, e.conn)
	}
}
