// Package keyring tracks which chats carry hidden-encrypted content and the
// passphrase registered for each. Entries live for the process lifetime.
package keyring

import (
	"sort"
	"sync"

	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
)

type Registry struct {
	mu      sync.RWMutex
	entries map[int64]string
	keys    map[int64]*cryptox.ChatKey
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[int64]string),
		keys:    make(map[int64]*cryptox.ChatKey),
	}
}

// Register sets the passphrase for chatID, replacing any previous one.
func (r *Registry) Register(chatID int64, passphrase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[chatID]; ok && old != passphrase {
		delete(r.keys, chatID)
	}
	r.entries[chatID] = passphrase
}

// Remove reports whether an entry existed.
func (r *Registry) Remove(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[chatID]
	delete(r.entries, chatID)
	delete(r.keys, chatID)
	return ok
}

func (r *Registry) Get(chatID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[chatID]
	return p, ok
}

func (r *Registry) Contains(chatID int64) bool {
	_, ok := r.Get(chatID)
	return ok
}

// List returns registered chat ids in ascending order.
func (r *Registry) List() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Key returns the derived key for chatID, deriving and caching it on first
// use. It returns nil when the chat is not registered.
func (r *Registry) Key(chatID int64) *cryptox.ChatKey {
	r.mu.RLock()
	k, cached := r.keys[chatID]
	pass, registered := r.entries[chatID]
	r.mu.RUnlock()

	if cached {
		return k
	}
	if !registered {
		return nil
	}

	k = cryptox.DeriveChatKey(pass, chatID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[chatID]; ok && cur == pass {
		r.keys[chatID] = k
	}
	return k
}
