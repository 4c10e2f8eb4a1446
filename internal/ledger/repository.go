package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/inkledger/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const repoTimeout = 5 * time.Second

// Querier is satisfied by both the pool and an open transaction, so entries
// can be written inside the engine's atomic units.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides access to the append-only ledger.
type Repository struct {
	pool storage.PgxPool
}

// NewRepository constructs a ledger repository.
func NewRepository(pool storage.PgxPool) *Repository {
	return &Repository{pool: pool}
}

const insertQuery = `
INSERT INTO ledger_entries (id, account_id, source_app, kind, amount, description, related_item_code)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

// Insert appends an entry using the provided querier, typically a
// transaction owned by the caller. Entries are never updated or deleted.
func Insert(ctx context.Context, q Querier, entry Entry) error {
	if _, err := q.Exec(ctx, insertQuery,
		entry.ID,
		entry.AccountID,
		entry.SourceApp,
		string(entry.Kind),
		entry.Amount,
		entry.Description,
		entry.RelatedItemCode,
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByAccount returns the account's entries, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, account_id, source_app, kind, amount, description, related_item_code, created_at
FROM ledger_entries
WHERE account_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var kind string
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.SourceApp, &kind, &entry.Amount, &entry.Description, &entry.RelatedItemCode, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Kind = Kind(kind)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// SumByAccount returns the signed sum of all entry amounts for the account.
// Used by reconciliation checks; it must always equal the account balance.
func (r *Repository) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1;`,
		accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}
