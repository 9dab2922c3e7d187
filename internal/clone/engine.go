// Package clone reproduces one chat's history in another chat, either as
// plain reposts or hidden-encrypted with a per-chat passphrase.
package clone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
	"github.com/dmitrijs2005/tgtoolkit/internal/keyring"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

type Mode string

const (
	ModeForward   Mode = "forward"
	ModeReupload  Mode = "reupload"
	ModeEncrypted Mode = "encrypted"
)

const (
	DefaultFetchLimit   = 10000
	DefaultErrorLogSize = 100
)

// Connections hands out a live connection per account; 0 means the active
// account.
type Connections interface {
	Connection(ctx context.Context, accountID int64) (transport.Conn, error)
}

type Request struct {
	AccountID     int64
	SourceChatID  int64
	TargetChatID  int64
	Mode          Mode
	IncludeMedia  bool
	IncludePinned bool
	DateFrom      *time.Time
	DateTo        *time.Time
	Delay         time.Duration
	Password      string
}

func (r *Request) validate() error {
	switch r.Mode {
	case ModeForward, ModeReupload:
	case ModeEncrypted:
		if r.Password == "" {
			return common.Validationf("encryption password required for encrypted mode")
		}
	default:
		return common.Validationf("unknown clone mode %q", r.Mode)
	}
	if r.Delay < 0 {
		return common.Validationf("delay must not be negative")
	}
	if r.DateFrom != nil && r.DateTo != nil && r.DateTo.Before(*r.DateFrom) {
		return common.Validationf("date range is empty")
	}
	return nil
}

type Options struct {
	FetchLimit   int
	ErrorLogSize int
	// TempDir is the parent of per-operation work directories; empty means
	// the system default.
	TempDir string
}

type Engine struct {
	conns Connections
	keys  *keyring.Registry
	sink  ProgressSink
	opts  Options
	log   logging.Logger
	now   func() time.Time

	mu  sync.Mutex
	ops map[string]*operation
}

// NewEngine builds an engine. sink may be nil.
func NewEngine(conns Connections, keys *keyring.Registry, sink ProgressSink, opts Options, l logging.Logger) *Engine {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultFetchLimit
	}
	if opts.ErrorLogSize <= 0 {
		opts.ErrorLogSize = DefaultErrorLogSize
	}
	return &Engine{
		conns: conns,
		keys:  keys,
		sink:  sink,
		opts:  opts,
		log:   l.With("module", "clone"),
		now:   time.Now,
		ops:   make(map[string]*operation),
	}
}

// Clone runs an operation to the end and returns its summary. Failing to
// connect or to read the source history is fatal; per-message failures
// are only recorded.
func (e *Engine) Clone(ctx context.Context, req Request) (*Result, error) {
	conn, msgs, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	op := e.register(req, len(msgs), cancel)
	e.run(ctx, conn, op, req, msgs)
	return op.result(), nil
}

// Start prepares an operation like Clone but runs the copy in the
// background. The returned snapshot carries the operation id.
func (e *Engine) Start(ctx context.Context, req Request) (*Snapshot, error) {
	conn, msgs, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	op := e.register(req, len(msgs), cancel)
	go func() {
		defer cancel()
		e.run(bg, conn, op, req, msgs)
	}()
	s := op.snapshot()
	return &s, nil
}

// Cancel stops a running operation between messages.
func (e *Engine) Cancel(id string) error {
	op, err := e.lookup(id)
	if err != nil {
		return err
	}
	op.cancel()
	return nil
}

func (e *Engine) Progress(id string) (*Snapshot, error) {
	op, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s := op.snapshot()
	return &s, nil
}

// Operations lists every operation of this process, oldest first.
func (e *Engine) Operations() []Snapshot {
	e.mu.Lock()
	out := make([]Snapshot, 0, len(e.ops))
	for _, op := range e.ops {
		out = append(out, op.snapshot())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].OperationID < out[j].OperationID
	})
	return out
}

// Wait blocks until the operation finishes or ctx ends.
func (e *Engine) Wait(ctx context.Context, id string) (*Result, error) {
	op, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-op.done:
		return op.result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) lookup(id string) (*operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ops[id]
	if !ok {
		return nil, fmt.Errorf("%w: clone operation %s", common.ErrNotFound, id)
	}
	return op, nil
}

func (e *Engine) prepare(ctx context.Context, req Request) (transport.Conn, []transport.Message, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	conn, err := e.conns.Connection(ctx, req.AccountID)
	if err != nil {
		return nil, nil, err
	}

	e.log.Info(ctx, "fetching source history", "source_chat_id", req.SourceChatID, "limit", e.opts.FetchLimit)
	msgs, err := conn.Messages(ctx, req.SourceChatID, transport.HistoryQuery{Limit: e.opts.FetchLimit})
	if err != nil {
		return nil, nil, fmt.Errorf("clone: fetch history: %w", err)
	}
	return conn, chronological(msgs, req.DateFrom, req.DateTo), nil
}

// chronological filters newest-first history by date and reverses it.
func chronological(msgs []transport.Message, from, to *time.Time) []transport.Message {
	out := make([]transport.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if from != nil && m.Date.Before(*from) {
			continue
		}
		if to != nil && m.Date.After(*to) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (e *Engine) register(req Request, total int, cancel context.CancelFunc) *operation {
	started := e.now().UTC()
	base := fmt.Sprintf("%d_%d_%s", req.SourceChatID, req.TargetChatID, started.Format("20060102150405"))

	op := &operation{
		source:    req.SourceChatID,
		target:    req.TargetChatID,
		mode:      req.Mode,
		cancel:    cancel,
		done:      make(chan struct{}),
		total:     total,
		maxErrors: e.opts.ErrorLogSize,
		status:    StatusStarting,
		started:   started,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	op.id = base
	for n := 2; e.ops[op.id] != nil; n++ {
		op.id = base + "_" + strconv.Itoa(n)
	}
	e.ops[op.id] = op
	return op
}

func (e *Engine) publish(ctx context.Context, op *operation) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(context.WithoutCancel(ctx), op.snapshot()); err != nil {
		e.log.Debug(ctx, "progress publish failed", "operation_id", op.id, "error", err)
	}
}

func (e *Engine) run(ctx context.Context, conn transport.Conn, op *operation, req Request, msgs []transport.Message) {
	defer close(op.done)
	log := e.log.With("operation_id", op.id)

	var key *cryptox.ChatKey
	if req.Mode == ModeEncrypted {
		e.keys.Register(req.TargetChatID, req.Password)
		key = e.keys.Key(req.TargetChatID)
	}

	tmp, err := os.MkdirTemp(e.opts.TempDir, "tg_clone_")
	if err != nil {
		op.addError(err.Error())
		op.finish(StatusFailed, e.now().UTC())
		e.publish(ctx, op)
		log.Error(ctx, "clone failed", "error", err)
		return
	}
	defer os.RemoveAll(tmp)

	var limiter *rate.Limiter
	if req.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(req.Delay), 1)
	}

	op.setStatus(StatusRunning)
	e.publish(ctx, op)
	log.Info(ctx, "clone started", "total", len(msgs), "mode", req.Mode)

	final := StatusCompleted
	for i := range msgs {
		m := &msgs[i]
		if ctx.Err() != nil {
			final = StatusCancelled
			break
		}
		op.advance(i+1, fmt.Sprintf("Cloning message %d/%d", i+1, len(msgs)))

		if (m.Text == "" && !m.HasMedia()) || (m.Pinned && !req.IncludePinned) {
			op.record(false, true)
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				final = StatusCancelled
				break
			}
		}

		sent, err := e.cloneWithRetry(ctx, conn, req, key, tmp, m)
		switch {
		case err != nil:
			op.addError(fmt.Sprintf("Message %d: %v", m.ID, err))
			log.Warn(ctx, "message not cloned", "message_id", m.ID, "error", err)
		case sent:
			op.record(true, false)
		default:
			op.record(false, true)
		}
		e.publish(ctx, op)
	}

	op.finish(final, e.now().UTC())
	e.publish(ctx, op)
	s := op.snapshot()
	log.Info(ctx, "clone finished", "status", final, "cloned", s.ClonedCount, "skipped", s.SkippedCount, "errors", s.ErrorCount)
}

// cloneWithRetry honours one FLOOD_WAIT per message.
func (e *Engine) cloneWithRetry(ctx context.Context, conn transport.Conn, req Request, key *cryptox.ChatKey, tmp string, m *transport.Message) (bool, error) {
	sent, err := e.cloneOne(ctx, conn, req, key, tmp, m)
	wait, ok := transport.AsFloodWait(err)
	if !ok {
		return sent, err
	}
	e.log.Warn(ctx, "flood wait", "message_id", m.ID, "wait", wait.String())
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return false, err
	}
	return e.cloneOne(ctx, conn, req, key, tmp, m)
}

// cloneOne reports whether anything reached the target.
func (e *Engine) cloneOne(ctx context.Context, conn transport.Conn, req Request, key *cryptox.ChatKey, tmp string, m *transport.Message) (bool, error) {
	text := m.Text
	if key != nil {
		var err error
		if text, err = key.EncryptText(text); err != nil {
			return false, err
		}
	}

	if m.HasMedia() && req.IncludeMedia {
		return e.sendMedia(ctx, conn, req.TargetChatID, key, tmp, m, text)
	}
	if text == "" {
		return false, nil
	}
	if _, err := conn.SendText(ctx, req.TargetChatID, text, 0); err != nil {
		return false, err
	}
	return true, nil
}

// sendMedia re-uploads the message media with caption, falling back to a
// text-only send when the media cannot be moved.
func (e *Engine) sendMedia(ctx context.Context, conn transport.Conn, target int64, key *cryptox.ChatKey, tmp string, m *transport.Message, caption string) (bool, error) {
	err := e.uploadMedia(ctx, conn, target, key, tmp, m, caption)
	if err == nil {
		return true, nil
	}
	if _, ok := transport.AsFloodWait(err); ok {
		return false, err
	}
	e.log.Warn(ctx, "media not cloned, sending text only", "message_id", m.ID, "error", err)
	if caption == "" {
		return false, err
	}
	if _, err := conn.SendText(ctx, target, caption, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) uploadMedia(ctx context.Context, conn transport.Conn, target int64, key *cryptox.ChatKey, tmp string, m *transport.Message, caption string) error {
	path, err := conn.DownloadMedia(ctx, m, filepath.Join(tmp, fmt.Sprintf("media_%d", m.ID)))
	if err != nil {
		return err
	}
	defer os.Remove(path)

	if key != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		enc, name, err := key.EncryptFile(data)
		if err != nil {
			return err
		}
		path = filepath.Join(tmp, name)
		if err := os.WriteFile(path, enc, 0o600); err != nil {
			return err
		}
		defer os.Remove(path)
	}

	_, err = conn.SendFile(ctx, target, path, caption, 0)
	return err
}
