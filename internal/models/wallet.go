package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet balances are integer cents (or the smallest unit of the currency).
// Balance is mutated only through the ledger store's apply-entry path.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Currency     string    `json:"currency"`
	BalanceCents int64     `json:"balance_cents"`
	Label        string    `json:"label,omitempty"`
	IsDefault    bool      `json:"is_default"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
