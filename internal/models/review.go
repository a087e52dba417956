package models

import (
	"time"

	"github.com/google/uuid"
)

// ReviewEditWindow is how long a reviewer may edit or delete their review.
const ReviewEditWindow = 24 * time.Hour

type Review struct {
	ID          uuid.UUID `json:"id"`
	ContractID  uuid.UUID `json:"contract_id"`
	ReviewerID  uuid.UUID `json:"reviewer_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
