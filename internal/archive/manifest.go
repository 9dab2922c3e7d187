package archive

// Manifest is the document written by every export format. Field names
// are kept stable for existing viewers of export.json.
type Manifest struct {
	ChatID           string          `json:"chatId"`
	ExportedAt       string          `json:"exportedAt"`
	ExportVersion    string          `json:"exportVersion"`
	Channel          ChannelInfo     `json:"channel"`
	Participants     []Participant   `json:"participants"`
	ParticipantCount int             `json:"participantCount"`
	MessageCount     int             `json:"messageCount"`
	PinnedMessageIDs []int           `json:"pinnedMessageIds"`
	Messages         []MessageRecord `json:"messages"`
}

type ChannelInfo struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Username          *string  `json:"username"`
	About             *string  `json:"about"`
	ParticipantsCount *int     `json:"participantsCount"`
	IsChannel         bool     `json:"isChannel"`
	IsGroup           bool     `json:"isGroup"`
	CreatedAt         *int64   `json:"createdAt"`
	Photo             struct{} `json:"photo"`
}

type Participant struct {
	ID        string  `json:"id"`
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	IsBot     bool    `json:"isBot"`
	Photo     *string `json:"photo"`
}

type Sender struct {
	ID        string  `json:"id"`
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	IsBot     bool    `json:"isBot"`
}

type MessageRecord struct {
	ID               int          `json:"id"`
	Date             int64        `json:"date"`
	EditDate         *int64       `json:"editDate"`
	SenderID         string       `json:"senderId"`
	Sender           Sender       `json:"sender"`
	Text             string       `json:"text"`
	RawText          string       `json:"rawText"`
	Entities         []struct{}   `json:"entities"`
	HasMedia         bool         `json:"hasMedia"`
	Media            *MediaRecord `json:"media"`
	Views            *int         `json:"views"`
	Forwards         int          `json:"forwards"`
	Reactions        *struct{}    `json:"reactions"`
	ReplyToMessageID *int         `json:"replyToMessageId"`
	ForwardedFrom    *string      `json:"forwardedFrom"`
	IsPinned         bool         `json:"isPinned"`
	IsPost           bool         `json:"isPost"`
	IsSilent         bool         `json:"isSilent"`
	IsEdited         bool         `json:"isEdited"`
}

type MediaRecord struct {
	Type      string   `json:"type"`
	Filename  string   `json:"filename"`
	LocalPath string   `json:"localPath"`
	MimeType  *string  `json:"mimeType"`
	Size      *int64   `json:"size"`
	Width     *int     `json:"width"`
	Height    *int     `json:"height"`
	Duration  *float64 `json:"duration"`
	Thumbnail *string  `json:"thumbnail"`
	FileID    string   `json:"fileId"`
}

// SenderName picks the label shown in HTML and text transcripts.
func (m MessageRecord) SenderName() string {
	switch {
	case m.Sender.FirstName != nil && *m.Sender.FirstName != "":
		return *m.Sender.FirstName
	case m.Sender.Username != nil && *m.Sender.Username != "":
		return *m.Sender.Username
	}
	return "Unknown"
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
