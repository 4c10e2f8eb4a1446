package engine

import (
	"context"
	"testing"
	"time"

	"github.com/abduss/inkledger/internal/account"
	"github.com/abduss/inkledger/internal/ledger"
	"github.com/abduss/inkledger/internal/workspace"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewPostgresStore(mock), mock
}

func lockRows(credits, used, limit int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"credits", "storage_used_bytes", "storage_limit_bytes"}).
		AddRow(credits, used, limit)
}

func usageEntry(accountID string, amount int64) ledger.Entry {
	return ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		SourceApp: "app",
		Kind:      ledger.KindUsage,
		Amount:    -amount,
	}
}

func TestStore_Debit_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()
	entry := usageEntry("acct-1", 7)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(10, 0, 1048576))
	mock.ExpectQuery(`UPDATE accounts SET credits = credits - \$2, updated_at = NOW\(\) WHERE id = \$1 RETURNING credits`).
		WithArgs("acct-1", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(entry.ID, "acct-1", "app", "usage", int64(-7), "", entry.RelatedItemCode).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	newBalance, err := s.Debit(ctx, "acct-1", 7, entry)
	require.NoError(t, err)
	require.Equal(t, int64(3), newBalance)
}

func TestStore_Debit_Insufficient_RollsBack(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(3, 0, 1048576))
	mock.ExpectRollback()

	_, err := s.Debit(context.Background(), "acct-1", 5, usageEntry("acct-1", 5))
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Debit_UnknownAccount(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.Debit(context.Background(), "ghost", 1, usageEntry("ghost", 1))
	require.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestStore_Credit_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	entry := ledger.Entry{
		ID:          uuid.New(),
		AccountID:   "acct-1",
		SourceApp:   "shop",
		Kind:        ledger.KindPurchase,
		Amount:      25,
		Description: "pack",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(3, 0, 1048576))
	mock.ExpectQuery(`UPDATE accounts SET credits = credits \+ \$2, updated_at = NOW\(\) WHERE id = \$1 RETURNING credits`).
		WithArgs("acct-1", int64(25)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(28)))
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(entry.ID, "acct-1", "shop", "purchase", int64(25), "pack", entry.RelatedItemCode).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	newBalance, err := s.Credit(context.Background(), "acct-1", 25, entry)
	require.NoError(t, err)
	require.Equal(t, int64(28), newBalance)
}

func TestStore_SaveItem_Create_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	now := time.Now()

	p := SaveParams{
		OwnerID:   "acct-1",
		SourceApp: "app",
		ItemType:  "text",
		Title:     "doc",
		Content:   "hello world",
	}
	size := workspace.SizeBytes(p.Title, p.Content)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 0, 1048576))
	mock.ExpectQuery(`INSERT INTO workspace_items`).
		WithArgs(pgxmock.AnyArg(), "acct-1", "app", "text", "doc", "hello world", pgxmock.AnyArg(), size).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`UPDATE accounts SET storage_used_bytes = storage_used_bytes \+ \$2`).
		WithArgs("acct-1", size).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	item, err := s.SaveItem(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, item.Code, 6)
	require.Equal(t, size, item.SizeBytes)
	require.Equal(t, 2, item.WordCount)
}

func TestStore_SaveItem_CodeCollision_Retries(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	now := time.Now()

	p := SaveParams{OwnerID: "acct-1", SourceApp: "app", ItemType: "text", Title: "doc"}
	size := workspace.SizeBytes(p.Title, "")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 0, 1048576))
	// First code already taken; ON CONFLICT eats the insert and RETURNING is empty.
	mock.ExpectQuery(`INSERT INTO workspace_items`).
		WithArgs(pgxmock.AnyArg(), "acct-1", "app", "text", "doc", "", pgxmock.AnyArg(), size).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO workspace_items`).
		WithArgs(pgxmock.AnyArg(), "acct-1", "app", "text", "doc", "", pgxmock.AnyArg(), size).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`UPDATE accounts SET storage_used_bytes = storage_used_bytes \+ \$2`).
		WithArgs("acct-1", size).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	item, err := s.SaveItem(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, item.Code, 6)
}

func TestStore_SaveItem_CodeSpaceExhausted_RollsBack(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	p := SaveParams{OwnerID: "acct-1", SourceApp: "app", ItemType: "text", Title: "doc"}
	size := workspace.SizeBytes(p.Title, "")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 0, 1048576))
	// Every drawn code conflicts; the attempt cap surfaces as exhaustion.
	for i := 0; i < workspace.MaxCodeAttempts(); i++ {
		mock.ExpectQuery(`INSERT INTO workspace_items`).
			WithArgs(pgxmock.AnyArg(), "acct-1", "app", "text", "doc", "", pgxmock.AnyArg(), size).
			WillReturnError(pgx.ErrNoRows)
	}
	mock.ExpectRollback()

	_, err := s.SaveItem(context.Background(), p)
	require.ErrorIs(t, err, workspace.ErrCodeSpaceExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveItem_QuotaExceeded_RollsBack(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	p := SaveParams{OwnerID: "acct-1", SourceApp: "app", ItemType: "text", Title: "big", Content: "x"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 1048570, 1048576))
	mock.ExpectRollback()

	_, err := s.SaveItem(context.Background(), p)
	require.ErrorIs(t, err, ErrStorageExceeded)

	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, int64(1048570), quotaErr.UsedBytes)
	require.Equal(t, int64(1048576), quotaErr.LimitBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveItem_Update_AppliesDelta(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	now := time.Now()

	p := SaveParams{
		OwnerID:      "acct-1",
		SourceApp:    "app",
		ItemType:     "text",
		Title:        "doc",
		Content:      "longer content now",
		ExistingCode: "ABC123",
	}
	newSize := workspace.SizeBytes(p.Title, p.Content)
	oldSize := int64(140)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, oldSize, 1048576))
	mock.ExpectQuery(`SELECT size_bytes FROM workspace_items WHERE code = \$1 AND owner_account_id = \$2 AND is_deleted = FALSE FOR UPDATE`).
		WithArgs("ABC123", "acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"size_bytes"}).AddRow(oldSize))
	mock.ExpectQuery(`UPDATE workspace_items`).
		WithArgs("ABC123", "acct-1", "doc", "longer content now", pgxmock.AnyArg(), "text", newSize).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now.Add(-time.Hour), now))
	mock.ExpectExec(`UPDATE accounts SET storage_used_bytes = storage_used_bytes \+ \$2`).
		WithArgs("acct-1", newSize-oldSize).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	item, err := s.SaveItem(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "ABC123", item.Code)
	require.Equal(t, newSize, item.SizeBytes)
}

func TestStore_SaveItem_UpdateMissingItem(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	p := SaveParams{OwnerID: "acct-1", Title: "doc", ExistingCode: "GONE01"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 0, 1048576))
	mock.ExpectQuery(`SELECT size_bytes FROM workspace_items WHERE code = \$1 AND owner_account_id = \$2 AND is_deleted = FALSE FOR UPDATE`).
		WithArgs("GONE01", "acct-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.SaveItem(context.Background(), p)
	require.ErrorIs(t, err, workspace.ErrItemNotFound)
}

func TestStore_DeleteItem_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 500, 1048576))
	mock.ExpectQuery(`SELECT size_bytes FROM workspace_items WHERE code = \$1 AND owner_account_id = \$2 AND is_deleted = FALSE FOR UPDATE`).
		WithArgs("ABC123", "acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"size_bytes"}).AddRow(int64(500)))
	mock.ExpectExec(`UPDATE workspace_items SET is_deleted = TRUE`).
		WithArgs("ABC123", "acct-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE accounts SET storage_used_bytes = storage_used_bytes - \$2`).
		WithArgs("acct-1", int64(500)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	reclaimed, err := s.DeleteItem(context.Background(), "acct-1", "ABC123")
	require.NoError(t, err)
	require.Equal(t, int64(500), reclaimed)
}

func TestStore_DeleteItem_Missing(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(lockRows(0, 0, 1048576))
	mock.ExpectQuery(`SELECT size_bytes FROM workspace_items WHERE code = \$1 AND owner_account_id = \$2 AND is_deleted = FALSE FOR UPDATE`).
		WithArgs("GONE01", "acct-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.DeleteItem(context.Background(), "acct-1", "GONE01")
	require.ErrorIs(t, err, workspace.ErrItemNotFound)
}
