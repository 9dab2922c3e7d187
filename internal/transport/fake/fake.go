// Package fake is an in-memory Telegram stand-in. A Network plays the
// server side: it knows accounts, chats and history, hands out Conns through
// Dial and records every call so tests can assert on traffic.
package fake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

// PhoneAccount is an account reachable through the phone code flow.
type PhoneAccount struct {
	Code       string
	Password   string
	Credential string
	Identity   transport.Identity
}

// Sent is one outgoing message observed by the network.
type Sent struct {
	ChatID   int64
	Text     string
	FileName string
	FileData []byte
	ReplyTo  int
}

// QRScript drives QR tickets. Credential is the session granted on accept.
type QRScript struct {
	Credential string
	TTL        time.Duration
	Err        error
}

type Network struct {
	mu sync.Mutex

	Accounts     map[string]transport.Identity
	Phones       map[string]PhoneAccount
	Bots         map[string]transport.Identity
	Chats        map[int64]transport.Chat
	History      map[int64][]transport.Message
	MembersOf    map[int64][]transport.Identity
	MediaData    map[int][]byte
	SessionFiles map[string]string
	QR           *QRScript

	DialErr      error
	ConnectErr   error
	ConnectDelay time.Duration
	HistoryErr   error
	MembersErr   error
	// SendHook runs before every send with its 1-based index; an error
	// fails that send.
	SendHook func(n int, s Sent) error

	sent       []Sent
	calls      []string
	dials      int
	connects   int
	nextID     int
	qrAccepted bool
	conns      []*Conn
}

func NewNetwork() *Network {
	return &Network{
		Accounts:     make(map[string]transport.Identity),
		Phones:       make(map[string]PhoneAccount),
		Bots:         make(map[string]transport.Identity),
		Chats:        make(map[int64]transport.Chat),
		History:      make(map[int64][]transport.Message),
		MembersOf:    make(map[int64][]transport.Identity),
		MediaData:    make(map[int][]byte),
		SessionFiles: make(map[string]string),
		nextID:       100000,
	}
}

// AddHistory appends messages in chronological order to chatID.
func (n *Network) AddHistory(chatID int64, msgs ...transport.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range msgs {
		m.ChatID = chatID
		n.History[chatID] = append(n.History[chatID], m)
	}
}

// AcceptQR makes pending and future QR tickets succeed.
func (n *Network) AcceptQR() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.qrAccepted = true
}

func (n *Network) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

func (n *Network) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func (n *Network) Dials() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

func (n *Network) Connects() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connects
}

func (n *Network) Conns() []*Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Conn(nil), n.conns...)
}

func (n *Network) record(call string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call)
}

func (n *Network) Dial(opts transport.DialOptions) (transport.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "dial")
	n.dials++
	if n.DialErr != nil {
		return nil, n.DialErr
	}
	c := &Conn{net: n, cred: opts.Credential, handlers: map[int]transport.EventHandler{}}
	n.conns = append(n.conns, c)
	return c, nil
}

// DecodeSessionFile maps files whose content is registered in SessionFiles
// to the matching credential.
func (n *Network) DecodeSessionFile(_ context.Context, path string) (string, error) {
	n.record("decode_session_file")
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	cred, ok := n.SessionFiles[string(b)]
	if !ok {
		return "", fmt.Errorf("%w: unrecognised session file", common.ErrInvalidCredential)
	}
	return cred, nil
}

// Conn is a handle on a Network.
type Conn struct {
	net *Network

	mu           sync.Mutex
	cred         string
	connected    bool
	disconnects  int
	handlers     map[int]transport.EventHandler
	nextHandler  int
	pendingPhone string
}

var errNotConnected = errors.New("not connected")

func (c *Conn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *Conn) Credential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

func (c *Conn) Connect(ctx context.Context) error {
	c.net.mu.Lock()
	c.net.calls = append(c.net.calls, "connect")
	c.net.connects++
	delay, err := c.net.ConnectDelay, c.net.ConnectErr
	c.net.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return transport.Wrap("connect", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) Disconnect(context.Context) error {
	c.net.record("disconnect")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return nil
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) ready(call string) error {
	c.net.record(call)
	if !c.IsConnected() {
		return transport.Wrap(call, errNotConnected)
	}
	return nil
}

func (c *Conn) identity() (transport.Identity, bool) {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()

	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	id, ok := c.net.Accounts[cred]
	return id, ok && cred != ""
}

func (c *Conn) IsAuthorized(context.Context) (bool, error) {
	if err := c.ready("is_authorized"); err != nil {
		return false, err
	}
	_, ok := c.identity()
	return ok, nil
}

func (c *Conn) Self(context.Context) (*transport.Identity, error) {
	if err := c.ready("self"); err != nil {
		return nil, err
	}
	id, ok := c.identity()
	if !ok {
		return nil, transport.Wrap("self", errors.New("AUTH_KEY_UNREGISTERED"))
	}
	return &id, nil
}

func (c *Conn) RequestCode(_ context.Context, phone string) (string, error) {
	if err := c.ready("request_code"); err != nil {
		return "", err
	}
	c.net.mu.Lock()
	_, ok := c.net.Phones[phone]
	c.net.mu.Unlock()
	if !ok {
		return "", transport.Wrap("request_code", errors.New("PHONE_NUMBER_INVALID"))
	}
	c.mu.Lock()
	c.pendingPhone = phone
	c.mu.Unlock()
	return "hash-" + phone, nil
}

func (c *Conn) SignIn(_ context.Context, phone, code, nonce, password string) (*transport.Identity, error) {
	if err := c.ready("sign_in"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	acc, ok := c.net.Phones[phone]
	c.net.mu.Unlock()

	switch {
	case !ok || nonce != "hash-"+phone:
		return nil, transport.Wrap("sign_in", errors.New("PHONE_CODE_EXPIRED"))
	case code != acc.Code:
		return nil, transport.Wrap("sign_in", errors.New("PHONE_CODE_INVALID"))
	case acc.Password != "" && password == "":
		return nil, common.ErrTwoFactorRequired
	case acc.Password != "" && password != acc.Password:
		return nil, transport.Wrap("sign_in", errors.New("PASSWORD_HASH_INVALID"))
	}

	c.net.mu.Lock()
	c.net.Accounts[acc.Credential] = acc.Identity
	c.net.mu.Unlock()

	c.mu.Lock()
	c.cred = acc.Credential
	c.mu.Unlock()
	id := acc.Identity
	return &id, nil
}

func (c *Conn) SignInBot(_ context.Context, token string) (*transport.Identity, error) {
	if err := c.ready("sign_in_bot"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	id, ok := c.net.Bots[token]
	if ok {
		c.net.Accounts["bot:"+token] = id
	}
	c.net.mu.Unlock()
	if !ok {
		return nil, transport.Wrap("sign_in_bot", errors.New("ACCESS_TOKEN_INVALID"))
	}
	c.mu.Lock()
	c.cred = "bot:" + token
	c.mu.Unlock()
	return &id, nil
}

func (c *Conn) ExportCredential(context.Context) (string, error) {
	c.net.record("export_credential")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == "" {
		return "", transport.Wrap("export_credential", errors.New("not authorized"))
	}
	return c.cred, nil
}

func (c *Conn) Dialogs(_ context.Context, limit int) ([]transport.Chat, error) {
	if err := c.ready("dialogs"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	out := make([]transport.Chat, 0, len(c.net.Chats))
	for _, ch := range c.net.Chats {
		out = append(out, ch)
	}
	sortChats(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Conn) Chat(_ context.Context, chatID int64) (*transport.Chat, error) {
	if err := c.ready("chat"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	ch, ok := c.net.Chats[chatID]
	if !ok {
		return nil, transport.Wrap("chat", errors.New("CHANNEL_INVALID"))
	}
	return &ch, nil
}

func (c *Conn) Members(_ context.Context, chatID int64, limit, offset int) ([]transport.Identity, error) {
	if err := c.ready("members"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if c.net.MembersErr != nil {
		return nil, transport.Wrap("members", c.net.MembersErr)
	}
	all := c.net.MembersOf[chatID]
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return append([]transport.Identity(nil), all...), nil
}

func (c *Conn) Messages(_ context.Context, chatID int64, q transport.HistoryQuery) ([]transport.Message, error) {
	if err := c.ready("messages"); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if c.net.HistoryErr != nil {
		return nil, transport.Wrap("messages", c.net.HistoryErr)
	}

	hist := c.net.History[chatID]
	var out []transport.Message
	for i := len(hist) - 1; i >= 0; i-- {
		m := hist[i]
		if q.OffsetID > 0 && m.ID >= q.OffsetID {
			continue
		}
		if q.MaxID > 0 && m.ID >= q.MaxID {
			continue
		}
		if q.MinID > 0 && m.ID <= q.MinID {
			continue
		}
		out = append(out, m)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (c *Conn) send(call string, s Sent) (*transport.Message, error) {
	if err := c.ready(call); err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	n := len(c.net.sent) + 1
	hook := c.net.SendHook
	c.net.mu.Unlock()

	if hook != nil {
		if err := hook(n, s); err != nil {
			c.net.mu.Lock()
			c.net.sent = append(c.net.sent, Sent{ChatID: s.ChatID, Text: "<failed>"})
			c.net.mu.Unlock()
			return nil, transport.Wrap(call, err)
		}
	}

	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	c.net.sent = append(c.net.sent, s)
	c.net.nextID++
	m := transport.Message{ID: c.net.nextID, ChatID: s.ChatID, Date: time.Now().UTC(), Text: s.Text, ReplyToID: s.ReplyTo}
	c.net.History[s.ChatID] = append(c.net.History[s.ChatID], m)
	return &m, nil
}

// Delivered returns the sends that succeeded.
func (n *Network) Delivered() []Sent {
	var out []Sent
	for _, s := range n.Sent() {
		if s.Text != "<failed>" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Conn) SendText(_ context.Context, chatID int64, text string, replyTo int) (*transport.Message, error) {
	return c.send("send_text", Sent{ChatID: chatID, Text: text, ReplyTo: replyTo})
}

func (c *Conn) SendFile(_ context.Context, chatID int64, path, caption string, replyTo int) (*transport.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.net.record("send_file")
		return nil, transport.Wrap("send_file", err)
	}
	name := path[strings.LastIndexAny(path, `/\`)+1:]
	return c.send("send_file", Sent{ChatID: chatID, Text: caption, FileName: name, FileData: data, ReplyTo: replyTo})
}

func (c *Conn) DownloadMedia(_ context.Context, msg *transport.Message, dest string) (string, error) {
	if err := c.ready("download_media"); err != nil {
		return "", err
	}
	c.net.mu.Lock()
	data, ok := c.net.MediaData[msg.ID]
	c.net.mu.Unlock()
	if !ok || msg.Media == nil {
		return "", transport.Wrap("download_media", errors.New("FILE_REFERENCE_EXPIRED"))
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Conn) DeleteMessages(_ context.Context, chatID int64, ids []int) (int, error) {
	if err := c.ready("delete_messages"); err != nil {
		return 0, err
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	c.net.mu.Lock()
	hist := c.net.History[chatID]
	kept := hist[:0]
	for _, m := range hist {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	deleted := len(hist) - len(kept)
	c.net.History[chatID] = kept
	c.net.mu.Unlock()

	c.emit(transport.Event{Kind: transport.EventDeletedMessage, ChatID: chatID, DeletedIDs: ids})
	return deleted, nil
}

func (c *Conn) ForwardMessages(ctx context.Context, toChatID, fromChatID int64, ids []int) ([]transport.Message, error) {
	if err := c.ready("forward_messages"); err != nil {
		return nil, err
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	c.net.mu.Lock()
	var src []transport.Message
	for _, m := range c.net.History[fromChatID] {
		if want[m.ID] {
			src = append(src, m)
		}
	}
	c.net.mu.Unlock()

	out := make([]transport.Message, 0, len(src))
	for _, m := range src {
		sent, err := c.send("forward_messages", Sent{ChatID: toChatID, Text: m.Text})
		if err != nil {
			return out, err
		}
		sent.ForwardedFrom = fmt.Sprint(fromChatID)
		out = append(out, *sent)
	}
	return out, nil
}

func (c *Conn) Subscribe(h transport.EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Emit delivers e to every subscribed handler.
func (c *Conn) Emit(e transport.Event) { c.emit(e) }

func (c *Conn) emit(e transport.Event) {
	c.mu.Lock()
	hs := make([]transport.EventHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(context.Background(), e)
	}
}

var (
	_ transport.Dialer = (*Network)(nil)
	_ transport.Conn   = (*Conn)(nil)
)
