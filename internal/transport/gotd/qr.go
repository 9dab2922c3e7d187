package gotd

import (
	"context"
	"sync"
	"time"

	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tgerr"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

type qrTicket struct {
	conn *Conn
	qr   qrlogin.QR

	mu    sync.Mutex
	token qrlogin.Token
}

func (c *Conn) StartQR(ctx context.Context) (transport.QRTicket, error) {
	if _, err := c.api(); err != nil {
		return nil, err
	}
	t := &qrTicket{conn: c, qr: c.client.QR()}
	if err := t.Recreate(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *qrTicket) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token.URL()
}

func (t *qrTicket) Expires() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token.Expires()
}

func (t *qrTicket) Recreate(ctx context.Context) error {
	tok, err := t.qr.Export(ctx)
	if err != nil {
		return t.conn.wrap("export login token", err)
	}
	t.mu.Lock()
	t.token = tok
	t.mu.Unlock()
	return nil
}

func (t *qrTicket) Wait(ctx context.Context) error {
	select {
	case <-t.conn.loggedIn:
	case <-ctx.Done():
		return ctx.Err()
	}

	a, err := t.qr.Import(ctx)
	if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
		return common.ErrTwoFactorRequired
	}
	if err != nil {
		return t.conn.wrap("import login token", err)
	}
	_, err = t.conn.authorized(a)
	return err
}
