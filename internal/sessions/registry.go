// Package sessions owns the set of stored accounts and the cache of live
// transport connections, one per account.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/dbx"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
	"github.com/dmitrijs2005/tgtoolkit/internal/repositories/accounts"
	"github.com/dmitrijs2005/tgtoolkit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

// Sealer encrypts credentials at rest. *cryptox.Vault implements it.
type Sealer interface {
	EncryptString(s string) (string, error)
	DecryptString(token string) (string, error)
}

// Options carries the default Telegram API application.
type Options struct {
	APIID   int
	APIHash string
}

type Registry struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	vault  Sealer
	dialer transport.Dialer
	opts   Options
	log    logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	conns  map[int64]transport.Conn
	gens   map[int64]uint64
	active int64

	connecting singleflight.Group
}

func NewRegistry(db *sql.DB, repos repomanager.RepositoryManager, vault Sealer, dialer transport.Dialer, opts Options, l logging.Logger) *Registry {
	return &Registry{
		db:     db,
		repos:  repos,
		vault:  vault,
		dialer: dialer,
		opts:   opts,
		log:    l.With("module", "sessions"),
		now:    func() time.Time { return time.Now().UTC() },
		conns:  make(map[int64]transport.Conn),
		gens:   make(map[int64]uint64),
	}
}

// connectTimeout bounds a shared connect attempt, which outlives the
// context of the caller that started it.
const connectTimeout = 2 * time.Minute

func (r *Registry) accounts() accounts.Repository {
	return r.repos.Accounts(r.db)
}

func (r *Registry) cached(id int64) (transport.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok && c.IsConnected()
}

// List returns every stored account, newest first. IsConnected reflects the
// live cache; no connection is opened.
func (r *Registry) List(ctx context.Context) ([]models.AccountSummary, error) {
	list, err := r.accounts().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.AccountSummary, 0, len(list))
	for _, a := range list {
		_, live := r.cached(a.ID)
		out = append(out, a.Summary(live))
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (*models.AccountSummary, error) {
	a, err := r.accounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, live := r.cached(id)
	s := a.Summary(live)
	return &s, nil
}

// ActiveID returns the account used when callers pass id 0, or 0.
func (r *Registry) ActiveID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Remove closes the account's connection and deletes the record. A connect
// still in flight for id fails with common.ErrNotFound instead of caching.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	r.evict(ctx, id)

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repos.Accounts(tx)
		if _, err := repo.Get(ctx, id); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	// A connect may have read the row between evict and Delete.
	r.evict(ctx, id)
	if err != nil {
		return err
	}
	r.log.Info(ctx, "account removed", "account_id", id)
	return nil
}

// evict drops the cached handle for id, clears the active pointer if it
// points at id and invalidates connects that started before the call.
func (r *Registry) evict(ctx context.Context, id int64) {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	r.gens[id]++
	if r.active == id {
		r.active = 0
	}
	r.mu.Unlock()
	r.connecting.Forget(strconv.FormatInt(id, 10))

	if ok {
		if err := c.Disconnect(ctx); err != nil {
			r.log.Warn(ctx, "disconnect failed", "account_id", id, "error", err)
		}
	}
}

// ExportCredential returns the session string of an account, preferring the
// live connection over the stored copy.
func (r *Registry) ExportCredential(ctx context.Context, id int64) (string, error) {
	if c, ok := r.cached(id); ok {
		s, err := c.ExportCredential(ctx)
		if err == nil {
			return s, nil
		}
		r.log.Warn(ctx, "live export failed, using stored session", "account_id", id, "error", err)
	}

	a, err := r.accounts().Get(ctx, id)
	if err != nil {
		return "", err
	}
	return r.vault.DecryptString(a.EncryptedSession)
}

// Connection returns a connected handle for id, or for the active account
// when id is 0. Concurrent calls for one account share a single connect.
func (r *Registry) Connection(ctx context.Context, id int64) (transport.Conn, error) {
	fromActive := id == 0
	if fromActive {
		id = r.ActiveID()
		if id == 0 {
			return nil, common.ErrNoActiveAccount
		}
	}
	if c, ok := r.cached(id); ok {
		return c, nil
	}

	ch := r.connecting.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		if c, ok := r.cached(id); ok {
			return c, nil
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
		defer cancel()
		return r.connect(cctx, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if fromActive && errors.Is(err, common.ErrNotFound) {
			r.clearActive(id)
			return nil, fmt.Errorf("%w: account %d no longer exists", common.ErrNoActiveAccount, id)
		}
		return nil, err
	}
	return v.(transport.Conn), nil
}

func (r *Registry) clearActive(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == id {
		r.active = 0
	}
}

func (r *Registry) connect(ctx context.Context, id int64) (transport.Conn, error) {
	r.mu.Lock()
	gen := r.gens[id]
	r.mu.Unlock()

	repo := r.accounts()
	a, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cred, err := r.vault.DecryptString(a.EncryptedSession)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}

	c, err := r.dial(ctx, cred, a.APIID, a.APIHash)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}

	r.mu.Lock()
	if r.gens[id] != gen {
		r.mu.Unlock()
		if err := c.Disconnect(ctx); err != nil {
			r.log.Warn(ctx, "disconnect failed", "account_id", id, "error", err)
		}
		return nil, fmt.Errorf("account %d: %w", id, common.ErrNotFound)
	}
	stale := r.conns[id]
	r.conns[id] = c
	r.mu.Unlock()
	if stale != nil {
		_ = stale.Disconnect(ctx)
	}

	if err := repo.Touch(ctx, id, r.now()); err != nil {
		r.log.Warn(ctx, "failed to record account use", "account_id", id, "error", err)
	}
	if err := repo.SetConnected(ctx, id, true); err != nil {
		r.log.Warn(ctx, "failed to set connected flag", "account_id", id, "error", err)
	}

	r.log.Info(ctx, "account connected", "account_id", id)
	return c, nil
}

func (r *Registry) dial(ctx context.Context, cred string, apiID int, apiHash string) (transport.Conn, error) {
	if apiID == 0 {
		apiID = r.opts.APIID
	}
	if apiHash == "" {
		apiHash = r.opts.APIHash
	}
	c, err := r.dialer.Dial(transport.DialOptions{Credential: cred, APIID: apiID, APIHash: apiHash})
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewHandle dials and connects a handle that is not bound to any account.
// An empty credential gives an unauthenticated handle for login flows.
func (r *Registry) NewHandle(ctx context.Context, credential string) (transport.Conn, error) {
	return r.dial(ctx, credential, 0, "")
}

// DecodeSessionFile converts an on-disk session file to a session string.
func (r *Registry) DecodeSessionFile(ctx context.Context, path string) (string, error) {
	return r.dialer.DecodeSessionFile(ctx, path)
}

// SwitchActive connects id and makes it the active account.
func (r *Registry) SwitchActive(ctx context.Context, id int64) (*models.AccountSummary, error) {
	a, err := r.accounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.Connection(ctx, id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.active = id
	r.mu.Unlock()

	r.log.Info(ctx, "active account switched", "account_id", id)
	s := a.Summary(true)
	return &s, nil
}

// Register stores a freshly authenticated account, caches its connection
// and makes it active.
func (r *Registry) Register(ctx context.Context, a *models.Account, credential string, c transport.Conn) (*models.AccountSummary, error) {
	sealed, err := r.vault.EncryptString(credential)
	if err != nil {
		return nil, fmt.Errorf("seal session: %w", err)
	}
	now := r.now()
	a.EncryptedSession = sealed
	a.IsActive = true
	a.IsConnected = true
	a.LastUsedAt = &now
	if a.APIID == 0 {
		a.APIID, a.APIHash = r.opts.APIID, r.opts.APIHash
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repos.Accounts(tx)
		if a.RemoteUserID != 0 {
			prev, err := repo.GetByRemoteID(ctx, a.RemoteUserID)
			switch {
			case err == nil:
				r.log.Warn(ctx, "telegram user already stored under another account", "account_id", prev.ID, "telegram_user_id", a.RemoteUserID)
			case !errors.Is(err, common.ErrNotFound):
				return err
			}
		}
		_, err := repo.Create(ctx, a)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.conns[a.ID] = c
	r.active = a.ID
	r.mu.Unlock()

	r.log.Info(ctx, "account registered", "account_id", a.ID, "auth_method", a.AuthMethod)
	s := a.Summary(c.IsConnected())
	return &s, nil
}

// DisconnectAll persists the current credential of every cached
// connection, closes it and clears the active account. Individual
// failures are logged and ignored.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int64]transport.Conn)
	r.active = 0
	r.mu.Unlock()

	repo := r.accounts()
	for id, c := range conns {
		if c.IsConnected() {
			r.persistSession(ctx, repo, id, c)
		}
		if err := c.Disconnect(ctx); err != nil {
			r.log.Warn(ctx, "disconnect failed", "account_id", id, "error", err)
		}
		if err := repo.SetConnected(ctx, id, false); err != nil && !errors.Is(err, common.ErrNotFound) {
			r.log.Warn(ctx, "failed to clear connected flag", "account_id", id, "error", err)
		}
	}
}

// persistSession stores the credential the live connection currently holds.
func (r *Registry) persistSession(ctx context.Context, repo accounts.Repository, id int64, c transport.Conn) {
	cred, err := c.ExportCredential(ctx)
	if err != nil || cred == "" {
		r.log.Warn(ctx, "failed to export session", "account_id", id, "error", err)
		return
	}
	sealed, err := r.vault.EncryptString(cred)
	if err != nil {
		r.log.Warn(ctx, "failed to seal session", "account_id", id, "error", err)
		return
	}
	if err := repo.UpdateSession(ctx, id, sealed); err != nil && !errors.Is(err, common.ErrNotFound) {
		r.log.Warn(ctx, "failed to persist session", "account_id", id, "error", err)
	}
}
