package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/dbx"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (name, auth_method, encrypted_session, api_id, api_hash, notes,
			telegram_user_id, username, phone, first_name, last_name, is_bot,
			is_active, is_connected, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.AuthMethod, a.EncryptedSession, a.APIID, a.APIHash, a.Notes,
		a.RemoteUserID, a.Username, a.Phone, a.FirstName, a.LastName, a.IsBot,
		a.IsActive, a.IsConnected, a.CreatedAt, toNullTime(a.LastUsedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read account id: %w", err)
	}
	a.ID = id
	return a, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) GetByRemoteID(ctx context.Context, remoteID int64) (*models.Account, error) {
	return r.getOne(ctx, `telegram_user_id = ? ORDER BY created_at DESC LIMIT 1`, remoteID)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "touch account", `UPDATE accounts SET last_used_at = ?, is_connected = 1 WHERE id = ?`, at, id)
}

func (r *SQLiteRepository) SetConnected(ctx context.Context, id int64, connected bool) error {
	return r.exec(ctx, "update account", `UPDATE accounts SET is_connected = ? WHERE id = ?`, connected, id)
}

func (r *SQLiteRepository) UpdateSession(ctx context.Context, id int64, encryptedSession string) error {
	return r.exec(ctx, "update account session", `UPDATE accounts SET encrypted_session = ? WHERE id = ?`, encryptedSession, id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "delete account", `DELETE FROM accounts WHERE id = ?`, id)
}
