package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	NotifyEscrowFunded     = "escrow_funded"
	NotifyEscrowReleased   = "escrow_released"
	NotifyEscrowRefunded   = "escrow_refunded"
	NotifyEscrowDisputed   = "escrow_disputed"
	NotifyContractCreated  = "contract_created"
	NotifyContractUpdated  = "contract_updated"
	NotifyProposalReceived = "proposal_received"
	NotifyProposalDecided  = "proposal_decided"
	NotifyMilestoneUpdated = "milestone_updated"
	NotifyReviewReceived   = "review_received"
	NotifyDepositCompleted = "deposit_completed"
	NotifyWithdrawalUpdate = "withdrawal_update"
)

type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}
