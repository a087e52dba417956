package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigchain/backend/internal/models"
	"github.com/gigchain/backend/internal/notify"
)

var (
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrContractNotCompleted is returned when reviewing before the contract
	// completed.
	ErrContractNotCompleted = errors.New("contract is not completed")
	// ErrForbidden is returned when the caller is not a party to the contract
	// or does not own the review.
	ErrForbidden = errors.New("not authorized for this review")
	// ErrAlreadyReviewed is returned on a second review for the same contract.
	ErrAlreadyReviewed = errors.New("review already submitted for this contract")
	// ErrWindowClosed is returned when editing or deleting after the edit
	// window elapsed.
	ErrWindowClosed = errors.New("review can no longer be changed")
)

// Store is the review persistence surface. Satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, rev *models.Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Review, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Review, error)
	RatingSummary(ctx context.Context, recipientID uuid.UUID) (int64, float64, error)
	Update(ctx context.Context, rev *models.Review) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ContractStore resolves the contract under review. Satisfied by the
// contracts repository.
type ContractStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
}

type Service struct {
	store     Store
	contracts ContractStore
	notify    notify.EnqueueFunc
	now       func() time.Time
}

func NewService(store Store, contracts ContractStore, notifyFn notify.EnqueueFunc) *Service {
	return &Service{store: store, contracts: contracts, notify: notifyFn, now: time.Now}
}

type CreateParams struct {
	ContractID uuid.UUID
	Rating     int
	Comment    string
}

// Create submits a review of the counterparty on a completed contract.
func (s *Service) Create(ctx context.Context, p CreateParams, reviewerID uuid.UUID) (*models.Review, error) {
	if p.Rating < 1 || p.Rating > 5 {
		return nil, ErrInvalidRating
	}
	c, err := s.contracts.GetByID(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}

	var recipient uuid.UUID
	switch reviewerID {
	case c.ClientID:
		recipient = c.FreelancerID
	case c.FreelancerID:
		recipient = c.ClientID
	default:
		return nil, ErrForbidden
	}
	if c.Status != models.ContractStatusCompleted {
		return nil, ErrContractNotCompleted
	}

	rev := &models.Review{
		ContractID:  c.ID,
		ReviewerID:  reviewerID,
		RecipientID: recipient,
		Rating:      p.Rating,
		Comment:     p.Comment,
	}
	if err := s.store.Create(ctx, rev); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyReviewed
		}
		return nil, err
	}

	if s.notify != nil {
		payload, _ := json.Marshal(map[string]any{"review_id": rev.ID, "contract_id": c.ID})
		_ = s.notify(ctx, notify.UserNotificationArgs{
			UserID: recipient, Event: models.NotifyReviewReceived, Payload: payload,
		})
	}
	return rev, nil
}

// ListByContract returns a contract's reviews, visible to its parties.
func (s *Service) ListByContract(ctx context.Context, contractID, requesterID uuid.UUID) ([]*models.Review, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID && requesterID != c.FreelancerID {
		return nil, ErrForbidden
	}
	return s.store.ListByContract(ctx, contractID)
}

// ListByRecipient returns a user's received reviews. Public profile data.
func (s *Service) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Review, error) {
	return s.store.ListByRecipient(ctx, recipientID)
}

// RatingSummary returns the count and average rating for a user.
func (s *Service) RatingSummary(ctx context.Context, recipientID uuid.UUID) (int64, float64, error) {
	return s.store.RatingSummary(ctx, recipientID)
}

type UpdateParams struct {
	Rating  *int
	Comment *string
}

// Update edits a review within the edit window. Reviewer only.
func (s *Service) Update(ctx context.Context, id, requesterID uuid.UUID, p UpdateParams) (*models.Review, error) {
	rev, err := s.editable(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if p.Rating != nil {
		if *p.Rating < 1 || *p.Rating > 5 {
			return nil, ErrInvalidRating
		}
		rev.Rating = *p.Rating
	}
	if p.Comment != nil {
		rev.Comment = *p.Comment
	}
	if err := s.store.Update(ctx, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// Delete removes a review within the edit window. Reviewer only.
func (s *Service) Delete(ctx context.Context, id, requesterID uuid.UUID) error {
	rev, err := s.editable(ctx, id, requesterID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, rev.ID)
}

func (s *Service) editable(ctx context.Context, id, requesterID uuid.UUID) (*models.Review, error) {
	rev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rev.ReviewerID != requesterID {
		return nil, ErrForbidden
	}
	if s.now().Sub(rev.CreatedAt) > models.ReviewEditWindow {
		return nil, ErrWindowClosed
	}
	return rev, nil
}
