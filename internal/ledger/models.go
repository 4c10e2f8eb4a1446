package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindBonus      Kind = "bonus"
	KindPurchase   Kind = "purchase"
	KindUsage      Kind = "usage"
	KindAdjustment Kind = "adjustment"
	KindRefund     Kind = "refund"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	switch k {
	case KindBonus, KindPurchase, KindUsage, KindAdjustment, KindRefund:
		return true
	}
	return false
}

// CreditKinds are the kinds a caller may supply when adding credits.
// Usage entries are only ever written by the deduction path.
var CreditKinds = map[Kind]bool{
	KindBonus:      true,
	KindPurchase:   true,
	KindAdjustment: true,
	KindRefund:     true,
}

// Entry is one immutable row of the credit audit trail. The sum of Amount
// over an account's entries always equals that account's current balance.
type Entry struct {
	ID              uuid.UUID `json:"id"`
	AccountID       string    `json:"account_id"`
	SourceApp       string    `json:"source_app"`
	Kind            Kind      `json:"kind"`
	Amount          int64     `json:"amount"`
	Description     string    `json:"description"`
	RelatedItemCode *string   `json:"related_item_code,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
