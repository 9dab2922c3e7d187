// Package models defines the persisted account record and its public view.
package models

import (
	"strings"
	"time"
)

type AuthMethod string

const (
	AuthPhoneCode     AuthMethod = "phone_code"
	AuthQRCode        AuthMethod = "qr_code"
	AuthSessionString AuthMethod = "session_string"
	AuthSessionFile   AuthMethod = "session_file"
	AuthBotToken      AuthMethod = "bot_token"
)

// Account is one stored Telegram identity. EncryptedSession is a vault token
// and never leaves the sessions package in decrypted form.
type Account struct {
	ID               int64
	Name             string
	AuthMethod       AuthMethod
	EncryptedSession string
	APIID            int
	APIHash          string
	Notes            string

	RemoteUserID int64
	Username     string
	Phone        string
	FirstName    string
	LastName     string
	IsBot        bool

	IsActive    bool
	IsConnected bool
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// AccountSummary is the externally visible form of an Account.
type AccountSummary struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	AuthMethod   AuthMethod `json:"auth_method"`
	RemoteUserID int64      `json:"telegram_user_id,omitempty"`
	Username     string     `json:"username,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	DisplayName  string     `json:"display_name,omitempty"`
	IsBot        bool       `json:"is_bot"`
	IsActive     bool       `json:"is_active"`
	IsConnected  bool       `json:"is_connected"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Summary builds the public view. connected reflects the live connection
// cache rather than the stored flag.
func (a *Account) Summary(connected bool) AccountSummary {
	return AccountSummary{
		ID:           a.ID,
		Name:         a.Name,
		AuthMethod:   a.AuthMethod,
		RemoteUserID: a.RemoteUserID,
		Username:     a.Username,
		Phone:        a.Phone,
		DisplayName:  a.DisplayName(),
		IsBot:        a.IsBot,
		IsActive:     a.IsActive,
		IsConnected:  connected,
		Notes:        a.Notes,
		CreatedAt:    a.CreatedAt,
		LastUsedAt:   a.LastUsedAt,
	}
}
