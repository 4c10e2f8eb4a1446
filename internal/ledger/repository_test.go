package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindBonus, KindPurchase, KindUsage, KindAdjustment, KindRefund} {
		if !k.Valid() {
			t.Errorf("expected %q to be valid", k)
		}
	}
	if Kind("gift").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}

func TestCreditKindsExcludeUsage(t *testing.T) {
	if CreditKinds[KindUsage] {
		t.Error("usage must not be a creditable kind")
	}
	for _, k := range []Kind{KindBonus, KindPurchase, KindAdjustment, KindRefund} {
		if !CreditKinds[k] {
			t.Errorf("expected %q to be creditable", k)
		}
	}
}

func TestInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := Entry{
		ID:          uuid.New(),
		AccountID:   "acct-1",
		SourceApp:   "penora",
		Kind:        KindUsage,
		Amount:      -3,
		Description: "generation",
	}

	mock.ExpectExec(`INSERT INTO ledger_entries \(id, account_id, source_app, kind, amount, description, related_item_code\)`).
		WithArgs(entry.ID, "acct-1", "penora", "usage", int64(-3), "generation", entry.RelatedItemCode).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, Insert(context.Background(), mock, entry))
}

func TestListByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := NewRepository(mock)

	now := time.Now()
	code := "ABC123"
	rows := pgxmock.NewRows([]string{"id", "account_id", "source_app", "kind", "amount", "description", "related_item_code", "created_at"}).
		AddRow(uuid.New(), "acct-1", "penora", "usage", int64(-3), "generation", &code, now).
		AddRow(uuid.New(), "acct-1", "penora", "bonus", int64(50), "Welcome bonus", (*string)(nil), now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT id, account_id, source_app, kind, amount, description, related_item_code, created_at`).
		WithArgs("acct-1", 10).
		WillReturnRows(rows)

	entries, err := r.ListByAccount(context.Background(), "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, KindUsage, entries[0].Kind)
	require.Equal(t, "ABC123", *entries[0].RelatedItemCode)
	require.Nil(t, entries[1].RelatedItemCode)
}

func TestSumByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := NewRepository(mock)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM ledger_entries WHERE account_id = \$1`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(47)))

	sum, err := r.SumByAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Equal(t, int64(47), sum)
}
