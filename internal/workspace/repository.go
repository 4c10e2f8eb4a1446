package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/inkledger/internal/storage"
	"github.com/jackc/pgx/v5"
)

const repoTimeout = 5 * time.Second

const itemColumns = `code, owner_account_id, source_app, item_type, title, content, metadata, size_bytes, created_at, updated_at, is_deleted`

// Repository provides read access to workspace items. Writes go through the
// engine store so they share a transaction with storage accounting.
type Repository struct {
	pool storage.PgxPool
}

// NewRepository constructs a workspace repository.
func NewRepository(pool storage.PgxPool) *Repository {
	return &Repository{pool: pool}
}

// GetByCode fetches a live item ensuring ownership.
func (r *Repository) GetByCode(ctx context.Context, ownerID, code string) (Item, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT ` + itemColumns + `
FROM workspace_items
WHERE code = $1 AND owner_account_id = $2 AND is_deleted = FALSE;`

	item, err := scanItem(r.pool.QueryRow(ctx, query, code, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListByOwner returns the owner's live items, most recently updated first.
// A non-empty sourceApp narrows the list to one calling application.
func (r *Repository) ListByOwner(ctx context.Context, ownerID, sourceApp string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT ` + itemColumns + `
FROM workspace_items
WHERE owner_account_id = $1
  AND ($2 = '' OR source_app = $2)
  AND is_deleted = FALSE
ORDER BY updated_at DESC;`

	rows, err := r.pool.Query(ctx, query, ownerID, sourceApp)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// CountByOwner returns the number of live items the account owns.
func (r *Repository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM workspace_items WHERE owner_account_id = $1 AND is_deleted = FALSE;`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	var rawMetadata []byte
	if err := row.Scan(
		&item.Code,
		&item.OwnerAccountID,
		&item.SourceApp,
		&item.ItemType,
		&item.Title,
		&item.Content,
		&rawMetadata,
		&item.SizeBytes,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.IsDeleted,
	); err != nil {
		return Item{}, err
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &item.Metadata); err != nil {
			return Item{}, fmt.Errorf("decode item metadata: %w", err)
		}
	}
	item.WordCount = WordCount(item.Content)
	return item, nil
}
