package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var columns = []string{"id", "name", "auth_method", "encrypted_session", "api_id", "api_hash", "notes",
	"telegram_user_id", "username", "phone", "first_name", "last_name", "is_bot",
	"is_active", "is_connected", "created_at", "last_used_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+accounts\s*\(name,.*last_used_at\)\s*VALUES\s*\(\$1,.*\$16\)\s*RETURNING\s+id$`
	mock.ExpectQuery(q).
		WithArgs("Work", models.AuthPhoneCode, "token", 1, "hash", "", int64(42), "alice", "+100", "Alice", "", false,
			true, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	a := &models.Account{Name: "Work", AuthMethod: models.AuthPhoneCode, EncryptedSession: "token", APIID: 1, APIHash: "hash",
		RemoteUserID: 42, Username: "alice", Phone: "+100", FirstName: "Alice", IsActive: true, IsConnected: true}
	got, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 9 || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected account: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+accounts`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{Name: "x"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	used := created.Add(time.Hour)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*name,.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), "Work", "qr_code", "token", 0, "", "n", int64(42), "alice", "", "Alice", "L", false,
				true, false, created, used))

	got, err := repo.Get(context.Background(), 9)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.AuthMethod != models.AuthQRCode || got.RemoteUserID != 42 || got.Notes != "n" {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(used) {
		t.Fatalf("unexpected last used: %v", got.LastUsedAt)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+id`).
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 1)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetByRemoteID_Query(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+telegram_user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+1$`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(3), "A", "bot_token", "t", 0, "", "", int64(42), "bot", "", "", "", true,
				true, false, time.Now(), nil))

	got, err := repo.GetByRemoteID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByRemoteID error: %v", err)
	}
	if !got.IsBot || got.LastUsedAt != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestList_OrderedNewestFirst(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC$`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), "B", "session_string", "t", 0, "", "", int64(0), "", "", "", "", false, true, false, now, nil).
			AddRow(int64(1), "A", "session_string", "t", 0, "", "", int64(0), "", "", "", "", false, true, false, now.Add(-time.Hour), nil))

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 5); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestTouch_SetsConnected(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+last_used_at\s*=\s*\$1,\s*is_connected\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$2$`).
		WithArgs(at, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Touch(context.Background(), 5, at); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
}

func TestSetConnected_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+is_connected`).
		WithArgs(false, int64(5)).
		WillReturnError(errors.New("db err"))

	err := repo.SetConnected(context.Background(), 5, false)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
