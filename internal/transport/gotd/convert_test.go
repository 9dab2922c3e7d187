package gotd

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

func TestConvertMessage(t *testing.T) {
	peers := newPeerCache()
	peers.add([]tg.UserClass{&tg.User{ID: 7, Username: "alice"}}, nil)

	m := &tg.Message{
		ID:      10,
		PeerID:  &tg.PeerChannel{ChannelID: 55},
		FromID:  &tg.PeerUser{UserID: 7},
		Date:    1700000000,
		Message: "hello",
		Views:   3,
		Pinned:  true,
		ReplyTo: &tg.MessageReplyHeader{ReplyToMsgID: 9},
	}
	m.SetEditDate(1700000100)
	m.SetFwdFrom(tg.MessageFwdHeader{FromName: "bob"})

	got, ok := convertMessage(m, peers)
	require.True(t, ok)
	assert.Equal(t, 10, got.ID)
	assert.Equal(t, markChannel(55), got.ChatID)
	assert.Equal(t, int64(7), got.SenderID)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "alice", got.Sender.Username)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got.Date)
	require.NotNil(t, got.EditDate)
	assert.True(t, got.IsEdited())
	assert.Equal(t, 9, got.ReplyToID)
	assert.Equal(t, "bob", got.ForwardedFrom)
	assert.True(t, got.Pinned)
	assert.False(t, got.HasMedia())
}

func TestConvertMessage_SkipsService(t *testing.T) {
	_, ok := convertMessage(&tg.MessageService{ID: 1}, nil)
	assert.False(t, ok)
}

func TestConvertMedia(t *testing.T) {
	photo := &tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 1, Sizes: []tg.PhotoSizeClass{
		&tg.PhotoSize{Type: "m", W: 320, H: 240, Size: 100},
		&tg.PhotoSize{Type: "y", W: 1280, H: 960, Size: 900},
	}}}
	md := convertMedia(photo)
	require.NotNil(t, md)
	assert.Equal(t, transport.MediaPhoto, md.Kind)
	assert.Equal(t, 1280, md.Width)
	assert.Equal(t, int64(900), md.Size)

	voice := &tg.MessageMediaDocument{Document: &tg.Document{ID: 2, MimeType: "audio/ogg", Size: 10,
		Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true, Duration: 4}}}}
	md = convertMedia(voice)
	require.NotNil(t, md)
	assert.Equal(t, transport.MediaVoice, md.Kind)
	assert.Equal(t, 4.0, md.Duration)

	doc := &tg.MessageMediaDocument{Document: &tg.Document{ID: 3, MimeType: "application/pdf",
		Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: "report.pdf"}}}}
	md = convertMedia(doc)
	require.NotNil(t, md)
	assert.Equal(t, transport.MediaDocument, md.Kind)
	assert.Equal(t, "report.pdf", md.FileName)
	assert.Equal(t, ".pdf", mediaExt(md))

	assert.Nil(t, convertMedia(&tg.MessageMediaGeo{}))
}

func TestConvertChat(t *testing.T) {
	ch, ok := convertChat(&tg.Channel{ID: 5, Title: "news", Megagroup: true})
	require.True(t, ok)
	assert.Equal(t, markChannel(5), ch.ID)
	assert.Equal(t, transport.ChatSupergroup, ch.Type)
	assert.True(t, ch.IsGroup())

	ch, ok = convertChat(&tg.Channel{ID: 6, Title: "feed", Broadcast: true})
	require.True(t, ok)
	assert.True(t, ch.IsChannel())

	ch, ok = convertChat(&tg.Chat{ID: 7, Title: "friends", ParticipantsCount: 3})
	require.True(t, ok)
	assert.Equal(t, int64(-7), ch.ID)
	assert.Equal(t, transport.ChatGroup, ch.Type)

	_, ok = convertChat(&tg.ChatEmpty{ID: 1})
	assert.False(t, ok)

	u := userChat(&tg.User{ID: 3, FirstName: "Ann", LastName: "Lee", Username: "ann"})
	assert.Equal(t, "Ann Lee", u.Title)
	assert.Equal(t, transport.ChatPrivate, u.Type)
}

func TestSentMessages(t *testing.T) {
	short := &tg.UpdateShortSentMessage{ID: 77, Date: 1700000000}
	got := sentMessages(short, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 77, got[0].ID)

	full := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateMessageID{ID: 5, RandomID: 1},
		&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 5, PeerID: &tg.PeerChannel{ChannelID: 1}, Message: "x"}},
	}}
	got = sentMessages(full, newPeerCache())
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].ID)
	assert.Equal(t, "x", got[0].Text)
}

func TestPhotoThumbType(t *testing.T) {
	sizes := []tg.PhotoSizeClass{
		&tg.PhotoStrippedSize{Type: "i"},
		&tg.PhotoSize{Type: "m"},
		&tg.PhotoSizeProgressive{Type: "y"},
	}
	assert.Equal(t, "y", photoThumbType(sizes))
	assert.Equal(t, ".jpg", mediaExt(&transport.Media{Kind: transport.MediaPhoto}))
	assert.Equal(t, ".webp", mediaExt(&transport.Media{Kind: transport.MediaSticker}))
}
