package account

import "time"

// Statuses an account can be in. Accounts are never hard-deleted.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Account is the durable record of one identity's credit balance and
// storage usage. Balance and storage fields are mutated only by the
// engine's atomic operations.
type Account struct {
	ID                string    `json:"account_id"`
	DisplayName       string    `json:"display_name"`
	ContactEmail      string    `json:"contact_email"`
	Credits           int64     `json:"credits"`
	StorageUsedBytes  int64     `json:"storage_used_bytes"`
	StorageLimitBytes int64     `json:"storage_limit_bytes"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
