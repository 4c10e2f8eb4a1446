package account

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewRepository(mock), mock
}

func accountRows(id string, credits int64) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "display_name", "contact_email", "credits",
		"storage_used_bytes", "storage_limit_bytes", "status", "created_at", "updated_at",
	}).AddRow(id, "Alice", "alice@example.com", credits, int64(0), int64(1048576), StatusActive, now, now)
}

func TestRepository_Get(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, display_name, contact_email, credits, storage_used_bytes, storage_limit_bytes, status, created_at, updated_at FROM accounts WHERE id = \$1`).
		WithArgs("acct-1").
		WillReturnRows(accountRows("acct-1", 42))
	acct, err := r.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, "acct-1", acct.ID)
	require.Equal(t, int64(42), acct.Credits)

	mock.ExpectQuery(`SELECT id, display_name, contact_email, credits, storage_used_bytes, storage_limit_bytes, status, created_at, updated_at FROM accounts WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRepository_CreateWithBonus_New(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	acct := Account{
		ID:                "acct-1",
		DisplayName:       "Alice",
		ContactEmail:      "alice@example.com",
		StorageLimitBytes: 1048576,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("acct-1", "Alice", "alice@example.com", int64(50), int64(1048576), StatusActive).
		WillReturnRows(accountRows("acct-1", 50))
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(pgxmock.AnyArg(), "acct-1", "penora", "bonus", int64(50), "Welcome bonus", (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	stored, isNew, err := r.CreateWithBonus(context.Background(), acct, 50, "penora")
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, int64(50), stored.Credits)
}

func TestRepository_CreateWithBonus_Existing_NoSecondBonus(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	acct := Account{ID: "acct-1", StorageLimitBytes: 1048576}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("acct-1", "", "", int64(50), int64(1048576), StatusActive).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id, display_name, contact_email, credits, storage_used_bytes, storage_limit_bytes, status, created_at, updated_at FROM accounts WHERE id = \$1`).
		WithArgs("acct-1").
		WillReturnRows(accountRows("acct-1", 17))
	mock.ExpectCommit()

	stored, isNew, err := r.CreateWithBonus(context.Background(), acct, 50, "penora")
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, int64(17), stored.Credits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateWithBonus_ZeroBonusWritesNoEntry(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	acct := Account{ID: "acct-1", StorageLimitBytes: 1048576}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("acct-1", "", "", int64(0), int64(1048576), StatusActive).
		WillReturnRows(accountRows("acct-1", 0))
	mock.ExpectCommit()

	_, isNew, err := r.CreateWithBonus(context.Background(), acct, 0, "penora")
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, mock.ExpectationsWereMet())
}
