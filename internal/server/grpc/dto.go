package grpc

import "time"

type accountRequest struct {
	AccountID int64 `json:"account_id"`
}

type requestCodeRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type verifyCodeRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type generateQRRequest struct {
	Name string `json:"name"`
}

type pollQRRequest struct {
	Token string `json:"token"`
}

type importSessionRequest struct {
	SessionString string `json:"session_string"`
	Name          string `json:"name"`
}

// Data is base64 in JSON.
type importSessionFileRequest struct {
	Data []byte `json:"data"`
	Name string `json:"name"`
}

type importBotTokenRequest struct {
	BotToken string `json:"bot_token"`
	Name     string `json:"name"`
}

type listDialogsRequest struct {
	AccountID int64 `json:"account_id"`
	Limit     int   `json:"limit"`
}

type getMessagesRequest struct {
	AccountID int64 `json:"account_id"`
	ChatID    int64 `json:"chat_id"`
	Limit     int   `json:"limit"`
	OffsetID  int   `json:"offset_id"`
	MinID     int   `json:"min_id"`
	MaxID     int   `json:"max_id"`
}

type sendMessageRequest struct {
	AccountID int64  `json:"account_id"`
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ReplyTo   int    `json:"reply_to"`
	Plain     bool   `json:"plain"`
}

// Missing include_* flags default to true.
type startCloneRequest struct {
	AccountID     int64      `json:"account_id"`
	SourceChatID  int64      `json:"source_chat_id"`
	TargetChatID  int64      `json:"target_chat_id"`
	Mode          string     `json:"mode"`
	IncludeMedia  *bool      `json:"include_media"`
	IncludePinned *bool      `json:"include_pinned"`
	DateFrom      *time.Time `json:"date_from"`
	DateTo        *time.Time `json:"date_to"`
	DelaySeconds  float64    `json:"delay_seconds"`
	Password      string     `json:"encryption_password"`
}

type operationRequest struct {
	OperationID string `json:"operation_id"`
}

type exportChatRequest struct {
	AccountID    int64      `json:"account_id"`
	ChatID       int64      `json:"chat_id"`
	Format       string     `json:"format"`
	IncludeMedia *bool      `json:"include_media"`
	DateFrom     *time.Time `json:"date_from"`
	DateTo       *time.Time `json:"date_to"`
	Limit        int        `json:"limit"`
	Encrypt      bool       `json:"encrypt"`
	Password     string     `json:"password"`
	Upload       bool       `json:"upload"`
}

type chatKeyRequest struct {
	ChatID     int64  `json:"chat_id"`
	Passphrase string `json:"passphrase"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
