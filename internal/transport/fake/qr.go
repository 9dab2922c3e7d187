package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

const defaultQRTTL = 30 * time.Second

type ticket struct {
	conn *Conn

	mu      sync.Mutex
	url     string
	expires time.Time
	rounds  int
}

func (c *Conn) StartQR(context.Context) (transport.QRTicket, error) {
	if err := c.ready("start_qr"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	script := c.net.QR
	c.net.mu.Unlock()
	if script == nil {
		return nil, transport.Wrap("start_qr", errors.New("qr login disabled"))
	}
	t := &ticket{conn: c}
	t.rotate(script)
	return t, nil
}

func (t *ticket) rotate(s *QRScript) {
	ttl := s.TTL
	if ttl == 0 {
		ttl = defaultQRTTL
	}
	t.rounds++
	t.url = fmt.Sprintf("tg://login?token=fake-%d", t.rounds)
	t.expires = time.Now().Add(ttl)
}

func (t *ticket) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *ticket) Expires() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expires
}

// Rounds counts how many URLs the ticket has issued.
func (t *ticket) Rounds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rounds
}

func (t *ticket) Wait(ctx context.Context) error {
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		n := t.conn.net
		n.mu.Lock()
		accepted, script := n.qrAccepted, n.QR
		n.mu.Unlock()

		if accepted && script != nil {
			if script.Err != nil {
				return script.Err
			}
			t.conn.mu.Lock()
			t.conn.cred = script.Credential
			t.conn.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (t *ticket) Recreate(context.Context) error {
	t.conn.net.record("recreate_qr")
	t.conn.net.mu.Lock()
	s := t.conn.net.QR
	t.conn.net.mu.Unlock()
	if s == nil {
		return errors.New("qr login disabled")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotate(s)
	return nil
}

func sortChats(cs []transport.Chat) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
}
