package gotd

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

func unix(sec int) time.Time { return time.Unix(int64(sec), 0).UTC() }

func convertUser(u *tg.User) transport.Identity {
	return transport.Identity{
		ID:        u.ID,
		Username:  u.Username,
		Phone:     u.Phone,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.Bot,
	}
}

func convertChat(c tg.ChatClass) (transport.Chat, bool) {
	switch c := c.(type) {
	case *tg.Chat:
		created := unix(c.Date)
		return transport.Chat{
			ID:                markChat(c.ID),
			Title:             c.Title,
			Type:              transport.ChatGroup,
			ParticipantsCount: c.ParticipantsCount,
			CreatedAt:         &created,
		}, true
	case *tg.Channel:
		typ := transport.ChatChannel
		if c.Megagroup {
			typ = transport.ChatSupergroup
		}
		created := unix(c.Date)
		return transport.Chat{
			ID:                markChannel(c.ID),
			Title:             c.Title,
			Username:          c.Username,
			Type:              typ,
			ParticipantsCount: c.ParticipantsCount,
			CreatedAt:         &created,
		}, true
	}
	return transport.Chat{}, false
}

func userChat(u *tg.User) transport.Chat {
	title := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if title == "" {
		title = u.Username
	}
	return transport.Chat{ID: markUser(u.ID), Title: title, Username: u.Username, Type: transport.ChatPrivate}
}

// convertMessage maps a history entry. Service and empty messages yield ok=false.
func convertMessage(mc tg.MessageClass, peers *peerCache) (transport.Message, bool) {
	m, ok := mc.(*tg.Message)
	if !ok {
		return transport.Message{}, false
	}

	out := transport.Message{
		ID:       m.ID,
		ChatID:   markPeer(m.PeerID),
		Date:     unix(m.Date),
		Text:     m.Message,
		Views:    m.Views,
		Forwards: m.Forwards,
		Pinned:   m.Pinned,
		Post:     m.Post,
		Silent:   m.Silent,
	}
	if ed, ok := m.GetEditDate(); ok {
		t := unix(ed)
		out.EditDate = &t
	}

	switch from := m.FromID.(type) {
	case *tg.PeerUser:
		out.SenderID = from.UserID
	case nil:
		if p, ok := m.PeerID.(*tg.PeerUser); ok {
			out.SenderID = p.UserID
		}
	default:
		out.SenderID = markPeer(from)
	}
	if peers != nil && out.SenderID > 0 {
		if u, ok := peers.user(out.SenderID); ok {
			id := convertUser(u)
			out.Sender = &id
		}
	}

	if h, ok := m.ReplyTo.(*tg.MessageReplyHeader); ok {
		out.ReplyToID = h.ReplyToMsgID
	}
	if fwd, ok := m.GetFwdFrom(); ok {
		switch {
		case fwd.FromName != "":
			out.ForwardedFrom = fwd.FromName
		case fwd.FromID != nil:
			out.ForwardedFrom = fmt.Sprint(markPeer(fwd.FromID))
		}
	}

	out.Media = convertMedia(m.Media)
	return out, true
}

func convertMedia(mc tg.MessageMediaClass) *transport.Media {
	switch mm := mc.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := mm.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		md := &transport.Media{Kind: transport.MediaPhoto, FileID: fmt.Sprint(p.ID), Ref: p}
		if sz, ok := largestPhotoSize(p.Sizes); ok {
			md.Width, md.Height, md.Size = sz.W, sz.H, int64(sz.Size)
		}
		return md
	case *tg.MessageMediaDocument:
		d, ok := mm.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return convertDocument(d)
	}
	return nil
}

func convertDocument(d *tg.Document) *transport.Media {
	md := &transport.Media{
		Kind:     transport.MediaDocument,
		MimeType: d.MimeType,
		Size:     d.Size,
		FileID:   fmt.Sprint(d.ID),
		Ref:      d,
	}
	for _, attr := range d.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			md.FileName = a.FileName
		case *tg.DocumentAttributeVideo:
			md.Kind = transport.MediaVideo
			md.Width, md.Height, md.Duration = a.W, a.H, a.Duration
		case *tg.DocumentAttributeAudio:
			md.Kind = transport.MediaAudio
			if a.Voice {
				md.Kind = transport.MediaVoice
			}
			md.Duration = float64(a.Duration)
		case *tg.DocumentAttributeSticker:
			md.Kind = transport.MediaSticker
		case *tg.DocumentAttributeImageSize:
			md.Width, md.Height = a.W, a.H
		}
	}
	return md
}

func largestPhotoSize(sizes []tg.PhotoSizeClass) (*tg.PhotoSize, bool) {
	var best *tg.PhotoSize
	for _, s := range sizes {
		if ps, ok := s.(*tg.PhotoSize); ok && (best == nil || ps.Size > best.Size) {
			best = ps
		}
	}
	return best, best != nil
}

// photoThumbType picks the thumb type to download, preferring progressive
// full-size variants.
func photoThumbType(sizes []tg.PhotoSizeClass) string {
	typ := ""
	for _, s := range sizes {
		switch ps := s.(type) {
		case *tg.PhotoSize:
			typ = ps.Type
		case *tg.PhotoSizeProgressive:
			typ = ps.Type
		}
	}
	return typ
}

// sentMessage pulls the new message out of a send/forward response. The
// first result is the message for single sends.
func sentMessages(u tg.UpdatesClass, peers *peerCache) []transport.Message {
	var out []transport.Message
	switch u := u.(type) {
	case *tg.UpdateShortSentMessage:
		out = append(out, transport.Message{ID: u.ID, Date: unix(u.Date), Media: convertMedia(u.Media)})
	case *tg.Updates:
		if peers != nil {
			peers.add(u.Users, u.Chats)
		}
		out = append(out, messagesFromUpdates(u.Updates, peers)...)
	case *tg.UpdatesCombined:
		if peers != nil {
			peers.add(u.Users, u.Chats)
		}
		out = append(out, messagesFromUpdates(u.Updates, peers)...)
	}
	return out
}

func messagesFromUpdates(updates []tg.UpdateClass, peers *peerCache) []transport.Message {
	var out []transport.Message
	for _, upd := range updates {
		var mc tg.MessageClass
		switch upd := upd.(type) {
		case *tg.UpdateNewMessage:
			mc = upd.Message
		case *tg.UpdateNewChannelMessage:
			mc = upd.Message
		case *tg.UpdateNewScheduledMessage:
			mc = upd.Message
		default:
			continue
		}
		if m, ok := convertMessage(mc, peers); ok {
			out = append(out, m)
		}
	}
	return out
}
