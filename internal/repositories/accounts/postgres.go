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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (name, auth_method, encrypted_session, api_id, api_hash, notes,
		 telegram_user_id, username, phone, first_name, last_name, is_bot,
		 is_active, is_connected, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id`

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query,
		a.Name, a.AuthMethod, a.EncryptedSession, a.APIID, a.APIHash, a.Notes,
		a.RemoteUserID, a.Username, a.Phone, a.FirstName, a.LastName, a.IsBot,
		a.IsActive, a.IsConnected, a.CreatedAt, toNullTime(a.LastUsedAt)).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByRemoteID(ctx context.Context, remoteID int64) (*models.Account, error) {
	return r.getOne(ctx, `telegram_user_id = $1 ORDER BY created_at DESC LIMIT 1`, remoteID)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET last_used_at = $1, is_connected = TRUE WHERE id = $2`, at, id)
}

func (r *PostgresRepository) SetConnected(ctx context.Context, id int64, connected bool) error {
	return r.exec(ctx, `UPDATE accounts SET is_connected = $1 WHERE id = $2`, connected, id)
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, id int64, encryptedSession string) error {
	return r.exec(ctx, `UPDATE accounts SET encrypted_session = $1 WHERE id = $2`, encryptedSession, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}
