package gotd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

const (
	historyPage      = 100
	dialogsPage      = 100
	participantsPage = 200
)

func (c *Conn) Dialogs(ctx context.Context, limit int) ([]transport.Chat, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > dialogsPage {
		limit = dialogsPage
	}

	res, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, c.wrap("get dialogs", err)
	}

	var (
		dialogs []tg.DialogClass
		msgs    []tg.MessageClass
		users   []tg.UserClass
		chats   []tg.ChatClass
	)
	switch r := res.(type) {
	case *tg.MessagesDialogs:
		dialogs, msgs, users, chats = r.Dialogs, r.Messages, r.Users, r.Chats
	case *tg.MessagesDialogsSlice:
		dialogs, msgs, users, chats = r.Dialogs, r.Messages, r.Users, r.Chats
	default:
		return nil, nil
	}
	c.peers.add(users, chats)

	known := make(map[int64]transport.Chat, len(users)+len(chats))
	for _, u := range users {
		if u, ok := u.(*tg.User); ok {
			known[markUser(u.ID)] = userChat(u)
		}
	}
	for _, ch := range chats {
		if conv, ok := convertChat(ch); ok {
			known[conv.ID] = conv
		}
	}
	last := make(map[string]string, len(msgs))
	for _, mc := range msgs {
		if m, ok := mc.(*tg.Message); ok {
			last[fmt.Sprintf("%d:%d", markPeer(m.PeerID), m.ID)] = m.Message
		}
	}

	out := make([]transport.Chat, 0, len(dialogs))
	for _, dc := range dialogs {
		d, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}
		id := markPeer(d.Peer)
		chat, ok := known[id]
		if !ok {
			continue
		}
		unread := d.UnreadCount
		chat.UnreadCount = &unread
		if text, ok := last[fmt.Sprintf("%d:%d", id, d.TopMessage)]; ok {
			chat.LastMessage = &text
		}
		out = append(out, chat)
	}
	return out, nil
}

// resolve turns a marked id into an input peer, loading dialogs once when
// the peer has not been seen yet.
func (c *Conn) resolve(ctx context.Context, chatID int64) (tg.InputPeerClass, error) {
	if p, ok := c.peers.inputPeer(chatID); ok {
		return p, nil
	}
	if _, err := c.Dialogs(ctx, dialogsPage); err != nil {
		return nil, err
	}
	if p, ok := c.peers.inputPeer(chatID); ok {
		return p, nil
	}
	return nil, transport.Wrap("resolve peer", fmt.Errorf("chat %d not found among dialogs", chatID))
}

func (c *Conn) Chat(ctx context.Context, chatID int64) (*transport.Chat, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	if _, err := c.resolve(ctx, chatID); err != nil {
		return nil, err
	}

	kind, raw := unmark(chatID)
	switch kind {
	case kindChannel:
		ic, _ := c.peers.inputChannel(chatID)
		full, err := api.ChannelsGetFullChannel(ctx, ic)
		if err != nil {
			return nil, c.wrap("get full channel", err)
		}
		return c.fullChat(chatID, full)
	case kindChat:
		full, err := api.MessagesGetFullChat(ctx, raw)
		if err != nil {
			return nil, c.wrap("get full chat", err)
		}
		return c.fullChat(chatID, full)
	default:
		u, ok := c.peers.user(raw)
		if !ok {
			return nil, transport.Wrap("get chat", fmt.Errorf("user %d not cached", raw))
		}
		chat := userChat(u)
		return &chat, nil
	}
}

func (c *Conn) fullChat(chatID int64, full *tg.MessagesChatFull) (*transport.Chat, error) {
	c.peers.add(full.Users, full.Chats)
	var chat *transport.Chat
	for _, ch := range full.Chats {
		if conv, ok := convertChat(ch); ok && conv.ID == chatID {
			chat = &conv
			break
		}
	}
	if chat == nil {
		return nil, transport.Wrap("get chat", fmt.Errorf("chat %d missing from response", chatID))
	}
	switch f := full.FullChat.(type) {
	case *tg.ChannelFull:
		chat.About = f.About
		if n, ok := f.GetParticipantsCount(); ok {
			chat.ParticipantsCount = n
		}
	case *tg.ChatFull:
		chat.About = f.About
		if p, ok := f.Participants.(*tg.ChatParticipants); ok {
			chat.ParticipantsCount = len(p.Participants)
		}
	}
	return chat, nil
}

func (c *Conn) Members(ctx context.Context, chatID int64, limit, offset int) ([]transport.Identity, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	if _, err := c.resolve(ctx, chatID); err != nil {
		return nil, err
	}

	kind, raw := unmark(chatID)
	switch kind {
	case kindChannel:
		ic, _ := c.peers.inputChannel(chatID)
		var out []transport.Identity
		for limit <= 0 || len(out) < limit {
			n := participantsPage
			if limit > 0 && limit-len(out) < n {
				n = limit - len(out)
			}
			res, err := api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
				Channel: ic,
				Filter:  &tg.ChannelParticipantsRecent{},
				Offset:  offset + len(out),
				Limit:   n,
			})
			if err != nil {
				return out, c.wrap("get participants", err)
			}
			page, ok := res.(*tg.ChannelsChannelParticipants)
			if !ok || len(page.Users) == 0 {
				break
			}
			c.peers.add(page.Users, page.Chats)
			for _, u := range page.Users {
				if u, ok := u.(*tg.User); ok {
					out = append(out, convertUser(u))
				}
			}
			if len(page.Users) < n {
				break
			}
		}
		return out, nil
	case kindChat:
		full, err := api.MessagesGetFullChat(ctx, raw)
		if err != nil {
			return nil, c.wrap("get full chat", err)
		}
		c.peers.add(full.Users, full.Chats)
		var out []transport.Identity
		for _, u := range full.Users {
			if u, ok := u.(*tg.User); ok {
				out = append(out, convertUser(u))
			}
		}
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}
	return nil, transport.Wrap("get participants", errors.New("private chats have no participant list"))
}

func (c *Conn) Messages(ctx context.Context, chatID int64, q transport.HistoryQuery) ([]transport.Message, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	peer, err := c.resolve(ctx, chatID)
	if err != nil {
		return nil, err
	}

	want := q.Limit
	if want <= 0 {
		want = historyPage
	}
	offset := q.OffsetID
	out := make([]transport.Message, 0, min(want, historyPage))
	for len(out) < want {
		n := min(historyPage, want-len(out))
		res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offset,
			Limit:    n,
			MaxID:    q.MaxID,
			MinID:    q.MinID,
		})
		if err != nil {
			return out, c.wrap("get history", err)
		}

		msgs := c.unpackHistory(res)
		if len(msgs) == 0 {
			break
		}
		for _, mc := range msgs {
			offset = mc.GetID()
			if m, ok := convertMessage(mc, c.peers); ok {
				m.ChatID = chatID
				out = append(out, m)
			}
		}
		if len(msgs) < n {
			break
		}
	}
	return out, nil
}

func (c *Conn) unpackHistory(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch r := res.(type) {
	case *tg.MessagesMessages:
		c.peers.add(r.Users, r.Chats)
		return r.Messages
	case *tg.MessagesMessagesSlice:
		c.peers.add(r.Users, r.Chats)
		return r.Messages
	case *tg.MessagesChannelMessages:
		c.peers.add(r.Users, r.Chats)
		return r.Messages
	}
	return nil
}

func replyTo(id int) tg.InputReplyToClass {
	if id <= 0 {
		return nil
	}
	return &tg.InputReplyToMessage{ReplyToMsgID: id}
}

func (c *Conn) firstSent(chatID int64, text string, res tg.UpdatesClass) *transport.Message {
	msgs := sentMessages(res, c.peers)
	if len(msgs) == 0 {
		return &transport.Message{ChatID: chatID, Text: text}
	}
	m := msgs[0]
	m.ChatID = chatID
	if m.Text == "" {
		m.Text = text
	}
	return &m
}

func (c *Conn) SendText(ctx context.Context, chatID int64, text string, reply int) (*transport.Message, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	peer, err := c.resolve(ctx, chatID)
	if err != nil {
		return nil, err
	}
	res, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int64(),
		ReplyTo:  replyTo(reply),
	})
	if err != nil {
		return nil, c.wrap("send message", err)
	}
	return c.firstSent(chatID, text, res), nil
}

var photoExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

func (c *Conn) SendFile(ctx context.Context, chatID int64, path, caption string, reply int) (*transport.Message, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	peer, err := c.resolve(ctx, chatID)
	if err != nil {
		return nil, err
	}

	f, err := uploader.NewUploader(api).FromPath(ctx, path)
	if err != nil {
		return nil, c.wrap("upload file", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var media tg.InputMediaClass
	if photoExts[ext] {
		media = &tg.InputMediaUploadedPhoto{File: f}
	} else {
		mt := mime.TypeByExtension(ext)
		if mt == "" {
			mt = "application/octet-stream"
		}
		media = &tg.InputMediaUploadedDocument{
			File:       f,
			MimeType:   mt,
			Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: filepath.Base(path)}},
		}
	}

	res, err := api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    media,
		Message:  caption,
		RandomID: rand.Int64(),
		ReplyTo:  replyTo(reply),
	})
	if err != nil {
		return nil, c.wrap("send media", err)
	}
	return c.firstSent(chatID, caption, res), nil
}

// mediaExt guesses the file extension for downloaded media.
func mediaExt(md *transport.Media) string {
	if md.FileName != "" {
		if ext := filepath.Ext(md.FileName); ext != "" {
			return ext
		}
	}
	switch md.Kind {
	case transport.MediaPhoto:
		return ".jpg"
	case transport.MediaVoice:
		return ".ogg"
	case transport.MediaSticker:
		return ".webp"
	}
	if md.MimeType != "" {
		if exts, _ := mime.ExtensionsByType(md.MimeType); len(exts) > 0 {
			return exts[0]
		}
	}
	return ""
}

func (c *Conn) DownloadMedia(ctx context.Context, msg *transport.Message, dest string) (string, error) {
	api, err := c.api()
	if err != nil {
		return "", err
	}
	if msg == nil || msg.Media == nil {
		return "", transport.Wrap("download media", errors.New("message has no media"))
	}

	var loc tg.InputFileLocationClass
	switch ref := msg.Media.Ref.(type) {
	case *tg.Photo:
		loc = &tg.InputPhotoFileLocation{
			ID:            ref.ID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
			ThumbSize:     photoThumbType(ref.Sizes),
		}
	case *tg.Document:
		loc = ref.AsInputDocumentFileLocation()
	default:
		return "", transport.Wrap("download media", fmt.Errorf("unsupported media reference %T", ref))
	}

	if filepath.Ext(dest) == "" {
		dest += mediaExt(msg.Media)
	}
	if _, err := downloader.NewDownloader().Download(api, loc).ToPath(ctx, dest); err != nil {
		return "", c.wrap("download media", err)
	}
	return dest, nil
}

func (c *Conn) DeleteMessages(ctx context.Context, chatID int64, ids []int) (int, error) {
	api, err := c.api()
	if err != nil {
		return 0, err
	}
	if _, err := c.resolve(ctx, chatID); err != nil {
		return 0, err
	}

	if ic, ok := c.peers.inputChannel(chatID); ok {
		res, err := api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{Channel: ic, ID: ids})
		if err != nil {
			return 0, c.wrap("delete channel messages", err)
		}
		return res.PtsCount, nil
	}
	res, err := api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{Revoke: true, ID: ids})
	if err != nil {
		return 0, c.wrap("delete messages", err)
	}
	return res.PtsCount, nil
}

func (c *Conn) ForwardMessages(ctx context.Context, toChatID, fromChatID int64, ids []int) ([]transport.Message, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	from, err := c.resolve(ctx, fromChatID)
	if err != nil {
		return nil, err
	}
	to, err := c.resolve(ctx, toChatID)
	if err != nil {
		return nil, err
	}

	rids := make([]int64, len(ids))
	for i := range rids {
		rids[i] = rand.Int64()
	}
	res, err := api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ToPeer:   to,
		ID:       ids,
		RandomID: rids,
	})
	if err != nil {
		return nil, c.wrap("forward messages", err)
	}

	out := sentMessages(res, c.peers)
	for i := range out {
		out[i].ChatID = toChatID
	}
	return out, nil
}
