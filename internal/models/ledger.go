package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds.
const (
	EntryKindFee        = "fee"
	EntryKindEscrow     = "escrow"
	EntryKindDeposit    = "deposit"
	EntryKindWithdrawal = "withdrawal"
	EntryKindRefund     = "refund"
	EntryKindRelease    = "release"
)

// Ledger entry statuses. Transitions are one-way:
// pending|processing -> completed|failed|cancelled.
const (
	EntryStatusPending    = "pending"
	EntryStatusProcessing = "processing"
	EntryStatusCompleted  = "completed"
	EntryStatusFailed     = "failed"
	EntryStatusCancelled  = "cancelled"
)

// LedgerEntry is an immutable record of a single balance-affecting event.
// AmountCents is signed: debits are negative, credits positive. FeeCents is
// informational for deposit/withdrawal entries (the platform's cut of the
// gross amount).
type LedgerEntry struct {
	ID                uuid.UUID  `json:"id"`
	WalletID          uuid.UUID  `json:"wallet_id"`
	UserID            uuid.UUID  `json:"user_id"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Kind              string     `json:"kind"`
	Status            string     `json:"status"`
	FeeCents          *int64     `json:"fee_cents,omitempty"`
	BalanceAfterCents *int64     `json:"balance_after_cents,omitempty"`
	ContractID        *uuid.UUID `json:"contract_id,omitempty"`
	MilestoneID       *uuid.UUID `json:"milestone_id,omitempty"`
	EscrowID          *uuid.UUID `json:"escrow_id,omitempty"`
	Description       string     `json:"description,omitempty"`
	IdempotencyKey    *string    `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
