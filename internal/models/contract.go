package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract statuses. The path is monotonic:
// draft -> active -> completed | cancelled | disputed.
const (
	ContractStatusDraft     = "draft"
	ContractStatusActive    = "active"
	ContractStatusCompleted = "completed"
	ContractStatusCancelled = "cancelled"
	ContractStatusDisputed  = "disputed"
)

type Contract struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	ProposalID   *uuid.UUID `json:"proposal_id,omitempty"`
	ClientID     uuid.UUID  `json:"client_id"`
	FreelancerID uuid.UUID  `json:"freelancer_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Terms        string     `json:"terms,omitempty"`
	BudgetCents  int64      `json:"budget_cents"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
