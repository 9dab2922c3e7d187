// Package gotd adapts github.com/gotd/td to the transport interfaces.
package gotd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

// Dialer creates gotd-backed handles. APIID and APIHash are used when
// DialOptions leaves them unset.
type Dialer struct {
	APIID   int
	APIHash string
	Logger  logging.Logger
}

func NewDialer(apiID int, apiHash string, l logging.Logger) *Dialer {
	if l == nil {
		l = logging.Nop()
	}
	return &Dialer{APIID: apiID, APIHash: apiHash, Logger: l.With("module", "gotd")}
}

func (d *Dialer) Dial(opts transport.DialOptions) (transport.Conn, error) {
	apiID, apiHash := opts.APIID, opts.APIHash
	if apiID == 0 {
		apiID = d.APIID
	}
	if apiHash == "" {
		apiHash = d.APIHash
	}
	if apiID == 0 || apiHash == "" {
		return nil, common.Validationf("telegram api id and api hash are required")
	}

	storage := &memoryStorage{}
	if opts.Credential != "" {
		if err := importSession(context.Background(), storage, opts.Credential); err != nil {
			return nil, err
		}
	}

	c := &Conn{
		storage:    storage,
		peers:      newPeerCache(),
		dispatcher: tg.NewUpdateDispatcher(),
		handlers:   make(map[int]transport.EventHandler),
		log:        d.Logger,
	}
	c.loggedIn = qrlogin.OnLoginToken(c.dispatcher)
	c.registerUpdates()
	c.client = telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  c.dispatcher,
	})
	return c, nil
}

func (d *Dialer) DecodeSessionFile(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidCredential, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidCredential, err)
	}
	defer db.Close()
	return decodeSessionDB(ctx, db)
}

// Conn owns one gotd client. The client runs in a background goroutine
// between Connect and Disconnect.
type Conn struct {
	client     *telegram.Client
	storage    *memoryStorage
	peers      *peerCache
	dispatcher tg.UpdateDispatcher
	loggedIn   qrlogin.LoggedIn
	log        logging.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan error
	connected atomic.Bool

	needPassword atomic.Bool

	hmu         sync.RWMutex
	handlers    map[int]transport.EventHandler
	nextHandler int
}

func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	go func() {
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		c.connected.Store(false)
		done <- err
		close(done)
	}()

	select {
	case <-ready:
		c.connected.Store(true)
		return nil
	case err := <-done:
		c.clear()
		return transport.Wrap("connect", err)
	case <-ctx.Done():
		cancel()
		<-done
		c.clear()
		return ctx.Err()
	}
}

func (c *Conn) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel, c.done = nil, nil
}

func (c *Conn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.connected.Store(false)
	return nil
}

func (c *Conn) IsConnected() bool { return c.connected.Load() }

func (c *Conn) api() (*tg.Client, error) {
	if !c.IsConnected() {
		return nil, transport.Wrap("api", errors.New("client is not connected"))
	}
	return c.client.API(), nil
}

func (c *Conn) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &transport.FloodWaitError{Wait: d, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return transport.Wrap(op, err)
}

func (c *Conn) IsAuthorized(ctx context.Context) (bool, error) {
	if _, err := c.api(); err != nil {
		return false, err
	}
	st, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, c.wrap("auth status", err)
	}
	return st.Authorized, nil
}

func (c *Conn) Self(ctx context.Context) (*transport.Identity, error) {
	if _, err := c.api(); err != nil {
		return nil, err
	}
	u, err := c.client.Self(ctx)
	if err != nil {
		return nil, c.wrap("self", err)
	}
	c.peers.add([]tg.UserClass{u}, nil)
	id := convertUser(u)
	return &id, nil
}

func (c *Conn) RequestCode(ctx context.Context, phone string) (string, error) {
	if _, err := c.api(); err != nil {
		return "", err
	}
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", c.wrap("send code", err)
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", transport.Wrap("send code", fmt.Errorf("unexpected sent code type: %T", sent))
	}
	c.needPassword.Store(false)
	return code.PhoneCodeHash, nil
}

func (c *Conn) SignIn(ctx context.Context, phone, code, nonce, password string) (*transport.Identity, error) {
	if _, err := c.api(); err != nil {
		return nil, err
	}
	cl := c.client.Auth()

	var (
		a   *tg.AuthAuthorization
		err error
	)
	if !c.needPassword.Load() {
		a, err = cl.SignIn(ctx, phone, code, nonce)
		if errors.Is(err, auth.ErrPasswordAuthNeeded) {
			c.needPassword.Store(true)
		}
	}
	if c.needPassword.Load() {
		if password == "" {
			return nil, common.ErrTwoFactorRequired
		}
		a, err = cl.Password(ctx, password)
	}
	if err != nil {
		return nil, c.wrap("sign in", err)
	}
	c.needPassword.Store(false)
	return c.authorized(a)
}

func (c *Conn) SignInBot(ctx context.Context, token string) (*transport.Identity, error) {
	if _, err := c.api(); err != nil {
		return nil, err
	}
	a, err := c.client.Auth().Bot(ctx, token)
	if err != nil {
		return nil, c.wrap("bot sign in", err)
	}
	return c.authorized(a)
}

func (c *Conn) authorized(a *tg.AuthAuthorization) (*transport.Identity, error) {
	u, ok := a.User.(*tg.User)
	if !ok {
		return nil, transport.Wrap("sign in", fmt.Errorf("unexpected user type: %T", a.User))
	}
	c.peers.add([]tg.UserClass{u}, nil)
	id := convertUser(u)
	return &id, nil
}

func (c *Conn) ExportCredential(ctx context.Context) (string, error) {
	if c.storage.empty() {
		return "", transport.Wrap("export session", errors.New("no session established"))
	}
	s, err := exportSession(ctx, c.storage)
	if err != nil {
		return "", transport.Wrap("export session", err)
	}
	return s, nil
}

func (c *Conn) Subscribe(h transport.EventHandler) func() {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *Conn) emit(ctx context.Context, e transport.Event) {
	c.hmu.RLock()
	hs := make([]transport.EventHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.hmu.RUnlock()
	for _, h := range hs {
		h(ctx, e)
	}
}

func (c *Conn) emitMessage(ctx context.Context, kind transport.EventKind, e tg.Entities, mc tg.MessageClass) error {
	c.peers.addEntities(e)
	m, ok := convertMessage(mc, c.peers)
	if !ok {
		return nil
	}
	c.emit(ctx, transport.Event{Kind: kind, ChatID: m.ChatID, Message: &m})
	return nil
}

func (c *Conn) registerUpdates() {
	d := c.dispatcher
	d.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.emitMessage(ctx, transport.EventNewMessage, e, u.Message)
	})
	d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.emitMessage(ctx, transport.EventNewMessage, e, u.Message)
	})
	d.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		return c.emitMessage(ctx, transport.EventEditedMessage, e, u.Message)
	})
	d.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		return c.emitMessage(ctx, transport.EventEditedMessage, e, u.Message)
	})
	d.OnDeleteMessages(func(ctx context.Context, _ tg.Entities, u *tg.UpdateDeleteMessages) error {
		c.emit(ctx, transport.Event{Kind: transport.EventDeletedMessage, DeletedIDs: u.Messages})
		return nil
	})
	d.OnDeleteChannelMessages(func(ctx context.Context, _ tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		c.emit(ctx, transport.Event{Kind: transport.EventDeletedMessage, ChatID: markChannel(u.ChannelID), DeletedIDs: u.Messages})
		return nil
	})
}

var (
	_ transport.Dialer = (*Dialer)(nil)
	_ transport.Conn   = (*Conn)(nil)
)
