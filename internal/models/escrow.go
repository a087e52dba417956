package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow statuses. funded is the only non-terminal state; an escrow leaves it
// exactly once.
const (
	EscrowStatusFunded   = "funded"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
	EscrowStatusDisputed = "disputed"
)

// EscrowTransaction records funds held against a contract or milestone.
// AmountCents is the held amount net of the platform fee; TotalCents is what
// the funding wallet was debited. Rows are never deleted.
type EscrowTransaction struct {
	ID               uuid.UUID  `json:"id"`
	ContractID       uuid.UUID  `json:"contract_id"`
	MilestoneID      *uuid.UUID `json:"milestone_id,omitempty"`
	WalletID         uuid.UUID  `json:"wallet_id"`
	FundedBy         uuid.UUID  `json:"funded_by"`
	AmountCents      int64      `json:"amount_cents"`
	PlatformFeeCents int64      `json:"platform_fee_cents"`
	TotalCents       int64      `json:"total_cents"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	FeeEntryID       uuid.UUID  `json:"fee_entry_id"`
	HoldEntryID      uuid.UUID  `json:"hold_entry_id"`
	ReleaseEntryID   *uuid.UUID `json:"release_entry_id,omitempty"`
	ResolvedBy       *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	IdempotencyKey   *string    `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}
