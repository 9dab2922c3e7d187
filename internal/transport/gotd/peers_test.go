package gotd

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkedIDs(t *testing.T) {
	tests := []struct {
		name   string
		peer   tg.PeerClass
		marked int64
		kind   peerKind
		raw    int64
	}{
		{"user", &tg.PeerUser{UserID: 42}, 42, kindUser, 42},
		{"basic group", &tg.PeerChat{ChatID: 1234}, -1234, kindChat, 1234},
		{"channel", &tg.PeerChannel{ChannelID: 1234}, -1000000001234, kindChannel, 1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.marked, markPeer(tt.peer))
			kind, raw := unmark(tt.marked)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.raw, raw)
		})
	}
}

func TestPeerCache_InputPeer(t *testing.T) {
	c := newPeerCache()
	c.add(
		[]tg.UserClass{&tg.User{ID: 7, AccessHash: 70}, &tg.User{ID: 8, Self: true}},
		[]tg.ChatClass{&tg.Chat{ID: 5}, &tg.Channel{ID: 9, AccessHash: 90}},
	)

	p, ok := c.inputPeer(7)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerUser{UserID: 7, AccessHash: 70}, p)

	p, ok = c.inputPeer(8)
	require.True(t, ok)
	assert.IsType(t, &tg.InputPeerSelf{}, p)

	p, ok = c.inputPeer(-5)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChat{ChatID: 5}, p)

	p, ok = c.inputPeer(markChannel(9))
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 9, AccessHash: 90}, p)

	ic, ok := c.inputChannel(markChannel(9))
	require.True(t, ok)
	assert.Equal(t, int64(90), ic.AccessHash)

	_, ok = c.inputChannel(-5)
	assert.False(t, ok)
	_, ok = c.inputPeer(markChannel(10))
	assert.False(t, ok)
}

func TestPeerCache_AddEntities(t *testing.T) {
	c := newPeerCache()
	c.addEntities(tg.Entities{
		Users:    map[int64]*tg.User{1: {ID: 1, AccessHash: 11}},
		Channels: map[int64]*tg.Channel{2: {ID: 2, AccessHash: 22}},
	})
	_, ok := c.inputPeer(1)
	assert.True(t, ok)
	_, ok = c.inputPeer(markChannel(2))
	assert.True(t, ok)
}
