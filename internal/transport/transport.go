// Package transport declares the capability surface the toolkit needs from
// a Telegram client library. The gotd subpackage is the production adapter;
// the fake subpackage is a scripted stand-in for tests.
package transport

import (
	"context"
	"time"
)

// Conn is one client handle, authenticated or not. Methods that talk to the
// network block until they finish or ctx is done. Library errors are wrapped
// with common.ErrTransport.
type Conn interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	IsAuthorized(ctx context.Context) (bool, error)
	Self(ctx context.Context) (*Identity, error)

	// RequestCode sends a login code to phone and returns the nonce
	// (phone code hash) SignIn needs.
	RequestCode(ctx context.Context, phone string) (string, error)
	// SignIn fails with common.ErrTwoFactorRequired when the account has a
	// cloud password and password is empty.
	SignIn(ctx context.Context, phone, code, nonce, password string) (*Identity, error)
	SignInBot(ctx context.Context, token string) (*Identity, error)
	StartQR(ctx context.Context) (QRTicket, error)

	// ExportCredential returns the opaque session string for this handle.
	ExportCredential(ctx context.Context) (string, error)

	Dialogs(ctx context.Context, limit int) ([]Chat, error)
	Chat(ctx context.Context, chatID int64) (*Chat, error)
	Members(ctx context.Context, chatID int64, limit, offset int) ([]Identity, error)
	// Messages returns history newest first.
	Messages(ctx context.Context, chatID int64, q HistoryQuery) ([]Message, error)

	SendText(ctx context.Context, chatID int64, text string, replyTo int) (*Message, error)
	SendFile(ctx context.Context, chatID int64, path, caption string, replyTo int) (*Message, error)
	// DownloadMedia stores the media of msg at dest and returns the final
	// path, which may carry an extension added by the adapter.
	DownloadMedia(ctx context.Context, msg *Message, dest string) (string, error)
	DeleteMessages(ctx context.Context, chatID int64, ids []int) (int, error)
	ForwardMessages(ctx context.Context, toChatID, fromChatID int64, ids []int) ([]Message, error)

	// Subscribe registers h for new, edited and deleted message events.
	// The returned func removes it.
	Subscribe(h EventHandler) func()
}

// QRTicket is one QR login exchange. The URL rotates roughly every 30s;
// callers re-render it after Recreate.
type QRTicket interface {
	URL() string
	Expires() time.Time
	// Wait blocks until the code is accepted on another device and the
	// login completes, or ctx ends. A cloud password on the account gives
	// common.ErrTwoFactorRequired.
	Wait(ctx context.Context) error
	Recreate(ctx context.Context) error
}

// DialOptions selects the credential and API application for a new handle.
// An empty Credential gives an unauthenticated handle.
type DialOptions struct {
	Credential string
	APIID      int
	APIHash    string
}

type Dialer interface {
	Dial(opts DialOptions) (Conn, error)
	// DecodeSessionFile converts an on-disk session file into the session
	// string form Dial accepts.
	DecodeSessionFile(ctx context.Context, path string) (string, error)
}

type EventKind string

const (
	EventNewMessage     EventKind = "new_message"
	EventEditedMessage  EventKind = "edited_message"
	EventDeletedMessage EventKind = "deleted_message"
)

type Event struct {
	Kind       EventKind
	ChatID     int64
	Message    *Message
	DeletedIDs []int
}

type EventHandler func(ctx context.Context, e Event)
