package gotd

import (
	"sync"

	"github.com/gotd/td/tg"
)

// Chat ids exposed by the toolkit are "marked": users keep their id, basic
// groups are negated and channels are shifted below -10^12.
const channelShift = 1_000_000_000_000

func markUser(id int64) int64    { return id }
func markChat(id int64) int64    { return -id }
func markChannel(id int64) int64 { return -(channelShift + id) }

type peerKind int

const (
	kindUser peerKind = iota
	kindChat
	kindChannel
)

// unmark splits a marked id into its kind and raw server id.
func unmark(id int64) (peerKind, int64) {
	switch {
	case id >= 0:
		return kindUser, id
	case id <= -channelShift:
		return kindChannel, -id - channelShift
	default:
		return kindChat, -id
	}
}

func markPeer(p tg.PeerClass) int64 {
	switch p := p.(type) {
	case *tg.PeerUser:
		return markUser(p.UserID)
	case *tg.PeerChat:
		return markChat(p.ChatID)
	case *tg.PeerChannel:
		return markChannel(p.ChannelID)
	}
	return 0
}

// peerCache remembers access hashes and entities seen in responses so marked
// ids can be turned back into input peers.
type peerCache struct {
	mu       sync.RWMutex
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func newPeerCache() *peerCache {
	return &peerCache{
		users:    make(map[int64]*tg.User),
		chats:    make(map[int64]*tg.Chat),
		channels: make(map[int64]*tg.Channel),
	}
}

func (c *peerCache) add(users []tg.UserClass, chats []tg.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		if u, ok := u.(*tg.User); ok {
			c.users[u.ID] = u
		}
	}
	for _, ch := range chats {
		switch ch := ch.(type) {
		case *tg.Chat:
			c.chats[ch.ID] = ch
		case *tg.Channel:
			c.channels[ch.ID] = ch
		}
	}
}

func (c *peerCache) user(id int64) (*tg.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

// inputPeer resolves a marked id. ok is false when the peer was never seen.
func (c *peerCache) inputPeer(marked int64) (tg.InputPeerClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kind, id := unmark(marked)
	switch kind {
	case kindUser:
		if u, ok := c.users[id]; ok {
			if u.Self {
				return &tg.InputPeerSelf{}, true
			}
			return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, true
		}
	case kindChat:
		if _, ok := c.chats[id]; ok {
			return &tg.InputPeerChat{ChatID: id}, true
		}
	case kindChannel:
		if ch, ok := c.channels[id]; ok {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
		}
	}
	return nil, false
}

func (c *peerCache) inputChannel(marked int64) (*tg.InputChannel, bool) {
	kind, id := unmark(marked)
	if kind != kindChannel {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	if !ok {
		return nil, false
	}
	return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
}

func (c *peerCache) addEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, u := range e.Users {
		c.users[id] = u
	}
	for id, ch := range e.Chats {
		c.chats[id] = ch
	}
	for id, ch := range e.Channels {
		c.channels[id] = ch
	}
}
