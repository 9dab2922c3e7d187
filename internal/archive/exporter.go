// Package archive exports a chat's history, and optionally its media, into
// a directory that can be sealed into a password protected .tgbak file.
package archive

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
	"github.com/dmitrijs2005/tgtoolkit/internal/filex"
	"github.com/dmitrijs2005/tgtoolkit/internal/keyring"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
)

const (
	DefaultMessageLimit = 10000
	participantLimit    = 500
	exportVersion       = "2.0"
)

type Connections interface {
	Connection(ctx context.Context, accountID int64) (transport.Conn, error)
}

// Uploader ships a sealed backup off the host and returns its object key
// and a time-limited download URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (key, url string, err error)
}

type Request struct {
	AccountID    int64
	ChatID       int64
	Format       Format
	IncludeMedia bool
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Encrypt      bool
	Password     string
	Upload       bool
}

type Result struct {
	ExportID         string `json:"export_id"`
	FilePath         string `json:"file_path"`
	EncryptedPath    string `json:"encrypted_path,omitempty"`
	IsEncrypted      bool   `json:"is_encrypted"`
	MediaDir         string `json:"media_dir,omitempty"`
	MessageCount     int    `json:"message_count"`
	ParticipantCount int    `json:"participant_count"`
	Format           Format `json:"format"`
	RemoteKey        string `json:"remote_key,omitempty"`
	DownloadURL      string `json:"download_url,omitempty"`
}

type Exporter struct {
	conns    Connections
	keys     *keyring.Registry
	uploader Uploader
	dir      string
	log      logging.Logger
	now      func() time.Time
	loc      *time.Location
}

// NewExporter writes exports below dir. uploader may be nil.
func NewExporter(conns Connections, keys *keyring.Registry, uploader Uploader, dir string, l logging.Logger) *Exporter {
	return &Exporter{
		conns:    conns,
		keys:     keys,
		uploader: uploader,
		dir:      dir,
		log:      l.With("module", "archive"),
		now:      time.Now,
		loc:      time.Local,
	}
}

func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Encrypt && req.Password == "" {
		return nil, common.Validationf("password required for encrypted export")
	}
	if req.Upload && !req.Encrypt {
		return nil, common.Validationf("only encrypted exports can be uploaded")
	}
	if req.Upload && e.uploader == nil {
		return nil, common.Validationf("object storage is not configured")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultMessageLimit
	}
	req.Format = ParseFormat(string(req.Format))

	conn, err := e.conns.Connection(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	chat, err := conn.Chat(ctx, req.ChatID)
	if err != nil {
		return nil, fmt.Errorf("export: get chat: %w", err)
	}

	participants := e.participants(ctx, conn, req.ChatID)

	msgs, err := conn.Messages(ctx, req.ChatID, transport.HistoryQuery{Limit: req.Limit})
	if err != nil {
		return nil, fmt.Errorf("export: fetch history: %w", err)
	}

	now := e.now()
	id, dir, err := e.makeDir(req.ChatID, now)
	if err != nil {
		return nil, err
	}
	mediaDir := filepath.Join(dir, "media")
	if req.IncludeMedia {
		if err := os.MkdirAll(mediaDir, 0o755); err != nil {
			return nil, err
		}
	}

	key := e.keys.Key(req.ChatID)
	records := make([]MessageRecord, 0, len(msgs))
	pinned := []int{}
	mediaNames := map[string]bool{}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := &msgs[i]
		if req.DateFrom != nil && m.Date.Before(*req.DateFrom) {
			continue
		}
		if req.DateTo != nil && m.Date.After(*req.DateTo) {
			continue
		}
		if m.Pinned {
			pinned = append(pinned, m.ID)
		}
		rec := newRecord(m, req.ChatID, key)
		if m.HasMedia() && req.IncludeMedia {
			rec.Media = e.downloadMedia(ctx, conn, m, mediaDir, mediaNames)
		}
		records = append(records, rec)
	}

	manifest := &Manifest{
		ChatID:           strconv.FormatInt(req.ChatID, 10),
		ExportedAt:       now.UTC().Format("2006-01-02T15:04:05.000000") + "Z",
		ExportVersion:    exportVersion,
		Channel:          channelInfo(chat, req.ChatID, len(participants)),
		Participants:     participants,
		ParticipantCount: len(participants),
		MessageCount:     len(records),
		PinnedMessageIDs: pinned,
		Messages:         records,
	}

	out := filepath.Join(dir, req.Format.fileName())
	if err := e.write(out, req.Format, manifest); err != nil {
		return nil, err
	}

	res := &Result{
		ExportID:         id,
		FilePath:         out,
		IsEncrypted:      req.Encrypt,
		MessageCount:     len(records),
		ParticipantCount: len(participants),
		Format:           req.Format,
	}
	if req.IncludeMedia {
		res.MediaDir = mediaDir
	}

	if req.Encrypt {
		if res.EncryptedPath, err = cryptox.SealDirectory(dir, req.Password); err != nil {
			return nil, fmt.Errorf("export: seal: %w", err)
		}
		if req.Upload {
			if res.RemoteKey, res.DownloadURL, err = e.uploader.Upload(ctx, res.EncryptedPath); err != nil {
				return nil, fmt.Errorf("export: upload: %w", err)
			}
		}
	}

	e.log.Info(ctx, "chat exported", "export_id", id, "format", req.Format, "messages", len(records), "encrypted", req.Encrypt)
	return res, nil
}

func (e *Exporter) makeDir(chatID int64, now time.Time) (string, string, error) {
	if chatID < 0 {
		chatID = -chatID
	}
	base := fmt.Sprintf("%d_%s", chatID, now.Format("20060102_150405"))
	return filex.UniqueDir(filepath.Join(e.dir, "exports"), base)
}

func (e *Exporter) write(path string, f Format, m *Manifest) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := render(w, f, m, e.loc); err != nil {
		_ = file.Close()
		return fmt.Errorf("export: render %s: %w", f, err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// participants is best effort: many chats hide their member list.
func (e *Exporter) participants(ctx context.Context, conn transport.Conn, chatID int64) []Participant {
	members, err := conn.Members(ctx, chatID, participantLimit, 0)
	if err != nil {
		e.log.Warn(ctx, "could not fetch participants", "chat_id", chatID, "error", err)
		return []Participant{}
	}
	out := make([]Participant, 0, len(members))
	for _, u := range members {
		out = append(out, Participant{
			ID:        strconv.FormatInt(u.ID, 10),
			Username:  strPtr(u.Username),
			FirstName: strPtr(u.FirstName),
			LastName:  strPtr(u.LastName),
			Phone:     strPtr(u.Phone),
			IsBot:     u.IsBot,
		})
	}
	return out
}

func channelInfo(c *transport.Chat, chatID int64, participants int) ChannelInfo {
	if chatID < 0 {
		chatID = -chatID
	}
	info := ChannelInfo{ID: strconv.FormatInt(chatID, 10), Title: "Unknown"}
	if c == nil {
		return info
	}
	info.Title = c.Title
	info.Username = strPtr(c.Username)
	info.About = strPtr(c.About)
	info.ParticipantsCount = optional(participants)
	info.IsChannel = c.IsChannel()
	info.IsGroup = c.IsGroup()
	if c.CreatedAt != nil {
		ts := c.CreatedAt.Unix()
		info.CreatedAt = &ts
	}
	return info
}

func newRecord(m *transport.Message, chatID int64, key *cryptox.ChatKey) MessageRecord {
	senderID := strconv.FormatInt(chatID, 10)
	if m.SenderID != 0 {
		senderID = strconv.FormatInt(m.SenderID, 10)
	}
	sender := Sender{ID: senderID}
	if m.Sender != nil {
		sender.Username = strPtr(m.Sender.Username)
		sender.FirstName = strPtr(m.Sender.FirstName)
		sender.LastName = strPtr(m.Sender.LastName)
		sender.IsBot = m.Sender.IsBot
	}

	text := m.Text
	if key != nil && cryptox.IsEncrypted(text) {
		text = key.DecryptText(text)
	}

	rec := MessageRecord{
		ID:               m.ID,
		Date:             m.Date.Unix(),
		SenderID:         senderID,
		Sender:           sender,
		Text:             text,
		RawText:          m.Text,
		Entities:         []struct{}{},
		HasMedia:         m.HasMedia(),
		Views:            optional(m.Views),
		Forwards:         m.Forwards,
		ReplyToMessageID: optional(m.ReplyToID),
		ForwardedFrom:    strPtr(m.ForwardedFrom),
		IsPinned:         m.Pinned,
		IsPost:           m.Post,
		IsSilent:         m.Silent,
		IsEdited:         m.IsEdited(),
	}
	if m.EditDate != nil {
		ts := m.EditDate.Unix()
		rec.EditDate = &ts
	}
	return rec
}

// mediaName picks the file name and default mime type for a media kind.
// ok is false for kinds that are not exported.
func mediaName(m *transport.Message) (name, mime string, ok bool) {
	md := m.Media
	orDefault := func(def string) string {
		if md.FileName != "" {
			return filepath.Base(md.FileName)
		}
		return def
	}
	orMime := func(def string) string {
		if md.MimeType != "" {
			return md.MimeType
		}
		return def
	}

	switch md.Kind {
	case transport.MediaPhoto:
		return fmt.Sprintf("photo_%d.jpg", m.ID), orMime(""), true
	case transport.MediaVideo:
		return orDefault(fmt.Sprintf("video_%d.mp4", m.ID)), orMime("video/mp4"), true
	case transport.MediaDocument:
		return orDefault(fmt.Sprintf("file_%d", m.ID)), orMime("application/octet-stream"), true
	case transport.MediaAudio:
		return orDefault(fmt.Sprintf("audio_%d.mp3", m.ID)), orMime("audio/mpeg"), true
	case transport.MediaVoice:
		return fmt.Sprintf("voice_%d.ogg", m.ID), "audio/ogg", true
	case transport.MediaSticker:
		return fmt.Sprintf("sticker_%d.webp", m.ID), orMime(""), true
	}
	return "", "", false
}

// downloadMedia returns metadata even when the download itself fails.
// taken holds the file names already used in dir.
func (e *Exporter) downloadMedia(ctx context.Context, conn transport.Conn, m *transport.Message, dir string, taken map[string]bool) *MediaRecord {
	name, mime, ok := mediaName(m)
	if !ok {
		return nil
	}
	name = filex.UniqueName(name, taken)
	md := m.Media
	rec := &MediaRecord{
		Type:      string(md.Kind),
		Filename:  name,
		LocalPath: "media/" + name,
		MimeType:  strPtr(mime),
		Size:      optional(md.Size),
		Width:     optional(md.Width),
		Height:    optional(md.Height),
		Duration:  optional(md.Duration),
		FileID:    md.FileID,
	}
	if rec.FileID == "" {
		rec.FileID = strconv.Itoa(m.ID)
	}

	path, err := conn.DownloadMedia(ctx, m, filepath.Join(dir, name))
	if err != nil {
		e.log.Warn(ctx, "media download failed", "message_id", m.ID, "error", err)
		return rec
	}
	if base := filepath.Base(path); base != name {
		taken[base] = true
		rec.Filename = base
		rec.LocalPath = "media/" + base
	}
	if st, err := os.Stat(path); err == nil {
		size := st.Size()
		rec.Size = &size
	}
	return rec
}
