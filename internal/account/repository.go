package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/inkledger/internal/ledger"
	"github.com/abduss/inkledger/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const repoTimeout = 5 * time.Second

const accountColumns = `id, display_name, contact_email, credits, storage_used_bytes, storage_limit_bytes, status, created_at, updated_at`

// Repository provides database access for accounts.
type Repository struct {
	pool storage.PgxPool
}

// NewRepository constructs an account repository.
func NewRepository(pool storage.PgxPool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches an account by its canonical key.
func (r *Repository) Get(ctx context.Context, accountID string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1;`

	var acct Account
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&acct.ID,
		&acct.DisplayName,
		&acct.ContactEmail,
		&acct.Credits,
		&acct.StorageUsedBytes,
		&acct.StorageLimitBytes,
		&acct.Status,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// CreateWithBonus provisions an account and its signup bonus ledger entry in
// one transaction. Provisioning is idempotent: if the account key already
// exists the call re-reads the row, writes nothing, and reports isNew=false,
// so the bonus is granted at most once per key.
func (r *Repository) CreateWithBonus(ctx context.Context, acct Account, bonus int64, sourceApp string) (stored Account, isNew bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Account{}, false, fmt.Errorf("begin provision tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit provision tx: %w", e)
		}
	}()

	insert := `
INSERT INTO accounts (id, display_name, contact_email, credits, storage_used_bytes, storage_limit_bytes, status)
VALUES ($1, $2, $3, $4, 0, $5, $6)
ON CONFLICT (id) DO NOTHING
RETURNING ` + accountColumns + `;`

	row := tx.QueryRow(ctx, insert,
		acct.ID,
		acct.DisplayName,
		acct.ContactEmail,
		bonus,
		acct.StorageLimitBytes,
		StatusActive,
	)

	scanErr := row.Scan(
		&stored.ID,
		&stored.DisplayName,
		&stored.ContactEmail,
		&stored.Credits,
		&stored.StorageUsedBytes,
		&stored.StorageLimitBytes,
		&stored.Status,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	switch {
	case scanErr == nil:
		isNew = true
	case errors.Is(scanErr, pgx.ErrNoRows):
		// Key already provisioned; the bonus must not be granted again.
		sel := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1;`
		if err = tx.QueryRow(ctx, sel, acct.ID).Scan(
			&stored.ID,
			&stored.DisplayName,
			&stored.ContactEmail,
			&stored.Credits,
			&stored.StorageUsedBytes,
			&stored.StorageLimitBytes,
			&stored.Status,
			&stored.CreatedAt,
			&stored.UpdatedAt,
		); err != nil {
			return Account{}, false, fmt.Errorf("reread account: %w", err)
		}
		return stored, false, nil
	default:
		err = fmt.Errorf("insert account: %w", scanErr)
		return Account{}, false, err
	}

	if bonus > 0 {
		entry := ledger.Entry{
			ID:          uuid.New(),
			AccountID:   stored.ID,
			SourceApp:   sourceApp,
			Kind:        ledger.KindBonus,
			Amount:      bonus,
			Description: "Welcome bonus",
		}
		if err = ledger.Insert(ctx, tx, entry); err != nil {
			return Account{}, false, err
		}
	}

	return stored, true, nil
}
