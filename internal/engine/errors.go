package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits means the balance was too low; the operation
	// aborted with no side effects.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrStorageExceeded means the save would overrun the account's quota.
	// Returned wrapped in a QuotaError carrying the current usage and limit.
	ErrStorageExceeded = errors.New("storage limit exceeded")
	// ErrInvalidAmount rejects zero, negative, or otherwise pathological amounts.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrInvalidKind rejects ledger kinds a caller may not write.
	ErrInvalidKind = errors.New("invalid ledger kind")
	// ErrTitleRequired rejects saves without a title.
	ErrTitleRequired = errors.New("item title required")
	// ErrTransientStore marks infrastructure failures that left no partial
	// effect and are safe to retry.
	ErrTransientStore = errors.New("transient store failure")
)

// QuotaError reports a quota rejection with enough detail for the caller
// to explain it.
type QuotaError struct {
	UsedBytes      int64 `json:"used_bytes"`
	LimitBytes     int64 `json:"limit_bytes"`
	RequestedBytes int64 `json:"requested_bytes"`
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage limit exceeded: %d used + %d requested > %d limit",
		e.UsedBytes, e.RequestedBytes, e.LimitBytes)
}

// Is makes QuotaError match ErrStorageExceeded in errors.Is checks.
func (e *QuotaError) Is(target error) bool {
	return target == ErrStorageExceeded
}
