// Package messages serves chat browsing for the active or a given account,
// applying hidden encryption for chats registered in the keyring.
package messages

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
	"github.com/dmitrijs2005/tgtoolkit/internal/keyring"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

const (
	defaultDialogLimit  = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type Connections interface {
	Connection(ctx context.Context, accountID int64) (transport.Conn, error)
}

// Message is a history entry as shown to callers. RawText is set only when
// Text was decrypted.
type Message struct {
	transport.Message
	RawText   string `json:"rawText,omitempty"`
	Decrypted bool   `json:"decrypted,omitempty"`
}

type Service struct {
	conns Connections
	keys  *keyring.Registry
	log   logging.Logger
}

func NewService(conns Connections, keys *keyring.Registry, l logging.Logger) *Service {
	return &Service{conns: conns, keys: keys, log: l.With("module", "messages")}
}

func (s *Service) Dialogs(ctx context.Context, accountID int64, limit int) ([]transport.Chat, error) {
	if limit <= 0 {
		limit = defaultDialogLimit
	}
	c, err := s.conns.Connection(ctx, accountID)
	if err != nil {
		return nil, err
	}
	chats, err := c.Dialogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list dialogs: %w", err)
	}
	return chats, nil
}

// History returns messages newest first. Hidden-encrypted texts in
// registered chats are decrypted; undecryptable ones show a placeholder.
func (s *Service) History(ctx context.Context, accountID, chatID int64, q transport.HistoryQuery) ([]Message, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = defaultHistoryLimit
	case q.Limit > maxHistoryLimit:
		q.Limit = maxHistoryLimit
	}
	c, err := s.conns.Connection(ctx, accountID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.Messages(ctx, chatID, q)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	key := s.keys.Key(chatID)
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Message: m}
		if key != nil && cryptox.IsEncrypted(m.Text) {
			out[i].RawText = m.Text
			out[i].Text = key.DecryptText(m.Text)
			out[i].Decrypted = true
		}
	}
	return out, nil
}

// Send posts text to chatID, hidden-encrypting it when the chat is
// registered unless plain is set.
func (s *Service) Send(ctx context.Context, accountID, chatID int64, text string, replyTo int, plain bool) (*transport.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, common.Validationf("message text is required")
	}
	c, err := s.conns.Connection(ctx, accountID)
	if err != nil {
		return nil, err
	}

	body := text
	if key := s.keys.Key(chatID); key != nil && !plain {
		if body, err = key.EncryptText(text); err != nil {
			return nil, err
		}
	}
	m, err := c.SendText(ctx, chatID, body, replyTo)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return m, nil
}
