package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/inkledger/internal/account"
	"github.com/abduss/inkledger/internal/ledger"
	"github.com/abduss/inkledger/internal/storage"
	"github.com/abduss/inkledger/internal/workspace"
	"github.com/jackc/pgx/v5"
)

const storeTimeout = 5 * time.Second

// SaveParams carries one save_item request into the store.
type SaveParams struct {
	OwnerID      string
	SourceApp    string
	ItemType     string
	Title        string
	Content      string
	Metadata     map[string]string
	ExistingCode string
}

// PostgresStore executes the engine's atomic units. Each method is one
// database transaction with the account row locked FOR UPDATE, so the
// balance/quota check and the mutation commit or roll back together.
type PostgresStore struct {
	pool storage.PgxPool
}

// NewPostgresStore constructs the transactional store.
func NewPostgresStore(pool storage.PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const lockAccountQuery = `SELECT credits, storage_used_bytes, storage_limit_bytes FROM accounts WHERE id = $1 FOR UPDATE`

type lockedAccount struct {
	credits      int64
	storageUsed  int64
	storageLimit int64
}

func lockAccount(ctx context.Context, tx pgx.Tx, accountID string) (lockedAccount, error) {
	var acct lockedAccount
	err := tx.QueryRow(ctx, lockAccountQuery, accountID).Scan(&acct.credits, &acct.storageUsed, &acct.storageLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedAccount{}, account.ErrAccountNotFound
		}
		return lockedAccount{}, fmt.Errorf("lock account: %w", err)
	}
	return acct, nil
}

// Debit checks the balance under the row lock, decrements it, and appends
// the usage entry, all in one transaction. An insufficient balance aborts
// with no side effects.
func (s *PostgresStore) Debit(ctx context.Context, accountID string, amount int64, entry ledger.Entry) (newBalance int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin debit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit debit tx: %w", e)
		}
	}()

	acct, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if acct.credits < amount {
		err = ErrInsufficientCredits
		return 0, err
	}

	if err = tx.QueryRow(ctx,
		`UPDATE accounts SET credits = credits - $2, updated_at = NOW() WHERE id = $1 RETURNING credits`,
		accountID, amount,
	).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}

	if err = ledger.Insert(ctx, tx, entry); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// Credit increments the balance and appends the matching entry atomically.
func (s *PostgresStore) Credit(ctx context.Context, accountID string, amount int64, entry ledger.Entry) (newBalance int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit credit tx: %w", e)
		}
	}()

	if _, err = lockAccount(ctx, tx, accountID); err != nil {
		return 0, err
	}

	if err = tx.QueryRow(ctx,
		`UPDATE accounts SET credits = credits + $2, updated_at = NOW() WHERE id = $1 RETURNING credits`,
		accountID, amount,
	).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}

	if err = ledger.Insert(ctx, tx, entry); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// SaveItem creates or updates an item and adjusts the account's storage
// usage in the same transaction. The quota check runs under the account
// row lock; a violation aborts with no side effects. Storage changes write
// no ledger entry: storage accounting is tracked on the item and the
// account, separate from credit accounting.
func (s *PostgresStore) SaveItem(ctx context.Context, p SaveParams) (item workspace.Item, err error) {
	newSize := workspace.SizeBytes(p.Title, p.Content)

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return workspace.Item{}, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit save tx: %w", e)
		}
	}()

	acct, err := lockAccount(ctx, tx, p.OwnerID)
	if err != nil {
		return workspace.Item{}, err
	}

	delta := newSize
	if p.ExistingCode != "" {
		var oldSize int64
		err = tx.QueryRow(ctx,
			`SELECT size_bytes FROM workspace_items WHERE code = $1 AND owner_account_id = $2 AND is_deleted = FALSE FOR UPDATE`,
			p.ExistingCode, p.OwnerID,
		).Scan(&oldSize)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = workspace.ErrItemNotFound
			}
			return workspace.Item{}, err
		}
		delta = newSize - oldSize
	}

	if acct.storageUsed+delta > acct.storageLimit {
		err = &QuotaError{
			UsedBytes:      acct.storageUsed,
			LimitBytes:     acct.storageLimit,
			RequestedBytes: delta,
		}
		return workspace.Item{}, err
	}

	item = workspace.Item{
		OwnerAccountID: p.OwnerID,
		SourceApp:      p.SourceApp,
		ItemType:       p.ItemType,
		Title:          p.Title,
		Content:        p.Content,
		Metadata:       p.Metadata,
		SizeBytes:      newSize,
		WordCount:      workspace.WordCount(p.Content),
	}
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	rawMetadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return workspace.Item{}, fmt.Errorf("encode item metadata: %w", err)
	}

	if p.ExistingCode != "" {
		item.Code = p.ExistingCode
		err = tx.QueryRow(ctx,
			`UPDATE workspace_items
SET title = $3, content = $4, metadata = $5, item_type = $6, size_bytes = $7, updated_at = NOW()
WHERE code = $1 AND owner_account_id = $2
RETURNING created_at, updated_at`,
			item.Code, p.OwnerID, p.Title, p.Content, rawMetadata, p.ItemType, newSize,
		).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return workspace.Item{}, fmt.Errorf("update item: %w", err)
		}
	} else {
		if err = insertWithFreshCode(ctx, tx, &item, rawMetadata); err != nil {
			return workspace.Item{}, err
		}
	}

	if delta != 0 {
		if _, err = tx.Exec(ctx,
			`UPDATE accounts SET storage_used_bytes = storage_used_bytes + $2, updated_at = NOW() WHERE id = $1`,
			p.OwnerID, delta,
		); err != nil {
			return workspace.Item{}, fmt.Errorf("update storage usage: %w", err)
		}
	}

	return item, nil
}

// insertWithFreshCode draws codes until the insert lands or the attempt cap
// is hit. ON CONFLICT DO NOTHING turns a collision into a missing RETURNING
// row rather than an aborted transaction.
func insertWithFreshCode(ctx context.Context, tx pgx.Tx, item *workspace.Item, rawMetadata []byte) error {
	for attempt := 0; attempt < workspace.MaxCodeAttempts(); attempt++ {
		code, err := workspace.NewCode()
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO workspace_items (code, owner_account_id, source_app, item_type, title, content, metadata, size_bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO NOTHING
RETURNING created_at, updated_at`,
			code, item.OwnerAccountID, item.SourceApp, item.ItemType, item.Title, item.Content, rawMetadata, item.SizeBytes,
		).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err == nil {
			item.Code = code
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return workspace.ErrCodeSpaceExhausted
}

// DeleteItem soft-deletes the item and reclaims its storage in one
// transaction, returning the reclaimed byte count. The row and its code
// are retained for audit and never reused.
func (s *PostgresStore) DeleteItem(ctx context.Context, accountID, code string) (reclaimed int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit delete tx: %w", e)
		}
	}()

	// Account first, then item: same lock order as SaveItem.
	if _, err = lockAccount(ctx, tx, accountID); err != nil {
		return 0, err
	}

	err = tx.QueryRow(ctx,
		`SELECT size_bytes FROM workspace_items WHERE code = $1 AND owner_account_id = $2 AND is_deleted = FALSE FOR UPDATE`,
		code, accountID,
	).Scan(&reclaimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = workspace.ErrItemNotFound
		}
		return 0, err
	}

	if _, err = tx.Exec(ctx,
		`UPDATE workspace_items SET is_deleted = TRUE, updated_at = NOW() WHERE code = $1 AND owner_account_id = $2`,
		code, accountID,
	); err != nil {
		return 0, fmt.Errorf("soft delete item: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE accounts SET storage_used_bytes = storage_used_bytes - $2, updated_at = NOW() WHERE id = $1`,
		accountID, reclaimed,
	); err != nil {
		return 0, fmt.Errorf("reclaim storage: %w", err)
	}

	return reclaimed, nil
}
