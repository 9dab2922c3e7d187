// Package accounts persists Account records. Postgres and SQLite
// implementations share one interface; lookups that match no row return
// common.ErrNotFound.
package accounts

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	Get(ctx context.Context, id int64) (*models.Account, error)
	GetByRemoteID(ctx context.Context, remoteID int64) (*models.Account, error)
	// List returns every account, newest first.
	List(ctx context.Context) ([]*models.Account, error)
	// Touch records a use of the account and marks it connected.
	Touch(ctx context.Context, id int64, at time.Time) error
	SetConnected(ctx context.Context, id int64, connected bool) error
	UpdateSession(ctx context.Context, id int64, encryptedSession string) error
	Delete(ctx context.Context, id int64) error
}

const accountColumns = `id, name, auth_method, encrypted_session, api_id, api_hash, notes,
		telegram_user_id, username, phone, first_name, last_name, is_bot,
		is_active, is_connected, created_at, last_used_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	a := &models.Account{}
	var lastUsed sql.NullTime
	err := s.Scan(&a.ID, &a.Name, &a.AuthMethod, &a.EncryptedSession, &a.APIID, &a.APIHash, &a.Notes,
		&a.RemoteUserID, &a.Username, &a.Phone, &a.FirstName, &a.LastName, &a.IsBot,
		&a.IsActive, &a.IsConnected, &a.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		a.LastUsedAt = &t
	}
	return a, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
