// Package engine implements the quota and credit engine: the only code
// allowed to mutate account balances and storage accounting.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/abduss/inkledger/internal/account"
	"github.com/abduss/inkledger/internal/config"
	"github.com/abduss/inkledger/internal/ledger"
	"github.com/abduss/inkledger/internal/metrics"
	"github.com/abduss/inkledger/internal/workspace"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Store executes the engine's atomic units. Implemented by PostgresStore.
type Store interface {
	Debit(ctx context.Context, accountID string, amount int64, entry ledger.Entry) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64, entry ledger.Entry) (int64, error)
	SaveItem(ctx context.Context, p SaveParams) (workspace.Item, error)
	DeleteItem(ctx context.Context, accountID, code string) (int64, error)
}

type accountReader interface {
	Get(ctx context.Context, accountID string) (account.Account, error)
}

type itemReader interface {
	GetByCode(ctx context.Context, ownerID, code string) (workspace.Item, error)
	ListByOwner(ctx context.Context, ownerID, sourceApp string) ([]workspace.Item, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

type entryReader interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
}

// Service wraps the store with validation, per-account serialization,
// bounded retry of transient failures, metrics, and cache maintenance.
type Service struct {
	store    Store
	accounts accountReader
	items    itemReader
	entries  entryReader
	cache    *account.Cache
	locks    *keyedMutex
	logg     *zap.Logger
	cfg      config.LedgerConfig
}

// NewService constructs the engine service.
func NewService(store Store, accounts accountReader, items itemReader, entries entryReader, cache *account.Cache, logg *zap.Logger, cfg config.LedgerConfig) *Service {
	if logg == nil {
		logg = zap.NewNop()
	}
	return &Service{
		store:    store,
		accounts: accounts,
		items:    items,
		entries:  entries,
		cache:    cache,
		locks:    newKeyedMutex(),
		logg:     logg,
		cfg:      cfg,
	}
}

// DeductRequest carries one authorize_and_deduct call.
type DeductRequest struct {
	AccountID   string
	Amount      int64
	SourceApp   string
	Description string
	ItemRef     *string
}

// CreditRequest carries one credit call.
type CreditRequest struct {
	AccountID   string
	Amount      int64
	Kind        ledger.Kind
	SourceApp   string
	Description string
}

// SaveRequest carries one save_item call.
type SaveRequest struct {
	AccountID    string
	SourceApp    string
	ItemType     string
	Title        string
	Content      string
	Metadata     map[string]string
	ExistingCode string
}

// StorageStats reports an account's workspace usage.
type StorageStats struct {
	UsedBytes    int64   `json:"used_bytes"`
	LimitBytes   int64   `json:"limit_bytes"`
	ItemCount    int64   `json:"item_count"`
	UsagePercent float64 `json:"usage_percent"`
}

// AuthorizeAndDeduct atomically checks the balance and spends credits,
// logging the usage entry. Two concurrent calls racing for the same last
// credit resolve to exactly one success.
func (s *Service) AuthorizeAndDeduct(ctx context.Context, req DeductRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, ErrInvalidAmount
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	entry := ledger.Entry{
		ID:              uuid.New(),
		AccountID:       req.AccountID,
		SourceApp:       req.SourceApp,
		Kind:            ledger.KindUsage,
		Amount:          -req.Amount,
		Description:     req.Description,
		RelatedItemCode: req.ItemRef,
	}

	var newBalance int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		newBalance, err = s.store.Debit(ctx, req.AccountID, req.Amount, entry)
		return err
	})
	if err != nil {
		metrics.ObserveOperation("deduct", resultLabel(err))
		return 0, err
	}

	s.cache.Invalidate(req.AccountID)
	metrics.ObserveOperation("deduct", "ok")
	s.logg.Info("credits deducted",
		zap.String("account_id", req.AccountID),
		zap.Int64("amount", req.Amount),
		zap.String("source_app", req.SourceApp),
		zap.Int64("new_balance", newBalance),
	)
	return newBalance, nil
}

// Credit atomically adds credits and logs the matching entry. Usage is not
// a creditable kind; it belongs to the deduction path alone.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !ledger.CreditKinds[req.Kind] {
		return 0, ErrInvalidKind
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	entry := ledger.Entry{
		ID:          uuid.New(),
		AccountID:   req.AccountID,
		SourceApp:   req.SourceApp,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Description: req.Description,
	}

	var newBalance int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		newBalance, err = s.store.Credit(ctx, req.AccountID, req.Amount, entry)
		return err
	})
	if err != nil {
		metrics.ObserveOperation("credit", resultLabel(err))
		return 0, err
	}

	s.cache.Invalidate(req.AccountID)
	metrics.ObserveOperation("credit", "ok")
	s.logg.Info("credits added",
		zap.String("account_id", req.AccountID),
		zap.Int64("amount", req.Amount),
		zap.String("kind", string(req.Kind)),
		zap.String("source_app", req.SourceApp),
	)
	return newBalance, nil
}

// SaveItem creates or updates a workspace item under the account's quota.
func (s *Service) SaveItem(ctx context.Context, req SaveRequest) (workspace.Item, error) {
	if strings.TrimSpace(req.Title) == "" {
		return workspace.Item{}, ErrTitleRequired
	}
	if req.ItemType == "" {
		req.ItemType = "text"
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	params := SaveParams{
		OwnerID:      req.AccountID,
		SourceApp:    req.SourceApp,
		ItemType:     req.ItemType,
		Title:        req.Title,
		Content:      req.Content,
		Metadata:     req.Metadata,
		ExistingCode: req.ExistingCode,
	}

	var item workspace.Item
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.store.SaveItem(ctx, params)
		return err
	})
	if err != nil {
		if errors.Is(err, workspace.ErrCodeSpaceExhausted) {
			s.logg.Error("item code space exhausted",
				zap.String("account_id", req.AccountID),
				zap.String("source_app", req.SourceApp),
			)
		}
		metrics.ObserveOperation("save_item", resultLabel(err))
		return workspace.Item{}, err
	}

	s.cache.Invalidate(req.AccountID)
	metrics.ObserveOperation("save_item", "ok")
	s.logg.Info("item saved",
		zap.String("account_id", req.AccountID),
		zap.String("code", item.Code),
		zap.Int64("size_bytes", item.SizeBytes),
		zap.String("source_app", req.SourceApp),
	)
	return item, nil
}

// DeleteItem soft-deletes an item and reclaims its storage.
func (s *Service) DeleteItem(ctx context.Context, accountID, code string) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	var reclaimed int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		reclaimed, err = s.store.DeleteItem(ctx, accountID, code)
		return err
	})
	if err != nil {
		metrics.ObserveOperation("delete_item", resultLabel(err))
		return err
	}

	s.cache.Invalidate(accountID)
	metrics.ObserveOperation("delete_item", "ok")
	s.logg.Info("item deleted",
		zap.String("account_id", accountID),
		zap.String("code", code),
		zap.Int64("reclaimed_bytes", reclaimed),
	)
	return nil
}

// GetBalance returns the account's current credit balance.
func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	acct, err := s.snapshot(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Credits, nil
}

// GetItem fetches one live item by code.
func (s *Service) GetItem(ctx context.Context, accountID, code string) (workspace.Item, error) {
	return s.items.GetByCode(ctx, accountID, code)
}

// ListItems returns the account's live items, optionally filtered by app.
func (s *Service) ListItems(ctx context.Context, accountID, sourceApp string) ([]workspace.Item, error) {
	return s.items.ListByOwner(ctx, accountID, sourceApp)
}

// GetStorageStats reports the account's usage, limit, and live item count.
func (s *Service) GetStorageStats(ctx context.Context, accountID string) (StorageStats, error) {
	acct, err := s.snapshot(ctx, accountID)
	if err != nil {
		return StorageStats{}, err
	}

	count, err := s.items.CountByOwner(ctx, accountID)
	if err != nil {
		return StorageStats{}, err
	}

	stats := StorageStats{
		UsedBytes:  acct.StorageUsedBytes,
		LimitBytes: acct.StorageLimitBytes,
		ItemCount:  count,
	}
	if acct.StorageLimitBytes > 0 {
		stats.UsagePercent = float64(acct.StorageUsedBytes) / float64(acct.StorageLimitBytes) * 100
	}
	return stats, nil
}

// History returns the account's ledger entries, newest first.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if _, err := s.snapshot(ctx, accountID); err != nil {
		return nil, err
	}
	return s.entries.ListByAccount(ctx, accountID, limit)
}

// snapshot serves the account through the TTL cache. The fill runs under
// the account lock: a fetch that raced a mutation must not re-insert the
// pre-mutation snapshot after that mutation already invalidated the entry.
func (s *Service) snapshot(ctx context.Context, accountID string) (account.Account, error) {
	if acct, ok := s.cache.Get(accountID); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return acct, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return account.Account{}, err
	}
	s.cache.Put(acct)
	return acct, nil
}

// withRetry retries transient store failures with exponential backoff.
// Business-rule failures surface immediately; a retry budget that runs out
// surfaces as ErrTransientStore so callers know it is safe to retry.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := uint64(s.cfg.RetryAttempts)
	if attempts < 1 {
		attempts = 1
	}
	base := s.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && isTransient(err) {
		s.logg.Warn("store failure after retries", zap.Error(err))
		return errors.Join(ErrTransientStore, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrStorageExceeded):
		return "storage_exceeded"
	case errors.Is(err, workspace.ErrItemNotFound):
		return "not_found"
	case errors.Is(err, account.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, ErrTransientStore), isTransient(err):
		return "transient"
	default:
		return "error"
	}
}
