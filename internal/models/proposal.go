package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Proposal statuses.
const (
	ProposalStatusPending   = "pending"
	ProposalStatusAccepted  = "accepted"
	ProposalStatusRejected  = "rejected"
	ProposalStatusWithdrawn = "withdrawn"
)

// ProposalMilestone is the milestone plan a freelancer attaches to a
// proposal. Accepted plans are copied onto the contract as pending
// milestones.
type ProposalMilestone struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

type Proposal struct {
	ID                   uuid.UUID       `json:"id"`
	ProjectID            uuid.UUID       `json:"project_id"`
	FreelancerID         uuid.UUID       `json:"freelancer_id"`
	CoverLetter          string          `json:"cover_letter,omitempty"`
	ProposedBudgetCents  int64           `json:"proposed_budget_cents"`
	ProposedDurationDays *int            `json:"proposed_duration_days,omitempty"`
	Milestones           json.RawMessage `json:"milestones,omitempty"`
	Status               string          `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
