package transport

import (
	"strings"
	"time"
)

type Identity struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	IsBot     bool   `json:"isBot"`
}

// DisplayName prefers the username, then the full name.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if i.Username != "" {
		return i.Username
	}
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Chat summarises a dialog. Optional fields are nil when the source did
// not provide them.
type Chat struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Username          string     `json:"username,omitempty"`
	About             string     `json:"about,omitempty"`
	Type              ChatType   `json:"type"`
	ParticipantsCount int        `json:"participantsCount"`
	CreatedAt         *time.Time `json:"createdAt,omitempty"`
	UnreadCount       *int       `json:"unreadCount,omitempty"`
	LastMessage       *string    `json:"lastMessage,omitempty"`
	PhotoPath         *string    `json:"photoPath,omitempty"`
}

func (c *Chat) IsChannel() bool { return c.Type == ChatChannel }

func (c *Chat) IsGroup() bool { return c.Type == ChatGroup || c.Type == ChatSupergroup }

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "voice"
	MediaSticker  MediaKind = "sticker"
)

type Media struct {
	Kind     MediaKind `json:"type"`
	FileName string    `json:"filename,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	FileID   string    `json:"fileId,omitempty"`

	// Ref is the adapter's own handle for downloading this media.
	Ref any `json:"-"`
}

type Message struct {
	ID            int        `json:"id"`
	ChatID        int64      `json:"chatId"`
	Date          time.Time  `json:"date"`
	EditDate      *time.Time `json:"editDate,omitempty"`
	SenderID      int64      `json:"senderId,omitempty"`
	Sender        *Identity  `json:"sender,omitempty"`
	Text          string     `json:"text"`
	Media         *Media     `json:"media,omitempty"`
	Views         int        `json:"views,omitempty"`
	Forwards      int        `json:"forwards,omitempty"`
	ReplyToID     int        `json:"replyToMessageId,omitempty"`
	ForwardedFrom string     `json:"forwardedFrom,omitempty"`
	Pinned        bool       `json:"isPinned"`
	Post          bool       `json:"isPost"`
	Silent        bool       `json:"isSilent"`
}

func (m *Message) HasMedia() bool { return m.Media != nil }

func (m *Message) IsEdited() bool { return m.EditDate != nil }

// HistoryQuery pages through a chat. Zero values mean "no bound"; Limit 0
// lets the adapter pick its page size.
type HistoryQuery struct {
	Limit    int
	OffsetID int
	MinID    int
	MaxID    int
}
