package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone statuses. Forward-only except the client rejection path
// submitted_for_approval -> in_progress. paid is set by the escrow engine
// when the milestone's escrow is released, never by a direct status update.
const (
	MilestoneStatusPending              = "pending"
	MilestoneStatusInProgress           = "in_progress"
	MilestoneStatusSubmittedForApproval = "submitted_for_approval"
	MilestoneStatusApproved             = "approved"
	MilestoneStatusPaid                 = "paid"
)

type Milestone struct {
	ID          uuid.UUID  `json:"id"`
	ContractID  uuid.UUID  `json:"contract_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
