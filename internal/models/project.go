package models

import (
	"time"

	"github.com/google/uuid"
)

// Project statuses.
const (
	ProjectStatusOpen       = "open"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusCancelled  = "cancelled"
)

type Project struct {
	ID          uuid.UUID `json:"id"`
	ClientID    uuid.UUID `json:"client_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	BudgetCents int64     `json:"budget_cents"`
	Currency    string    `json:"currency"`
	Skills      []string  `json:"skills,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
