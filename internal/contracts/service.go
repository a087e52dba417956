package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigchain/backend/internal/models"
	"github.com/gigchain/backend/internal/notify"
)

var (
	// ErrForbidden is returned when the caller may not act on this contract.
	ErrForbidden = errors.New("not authorized for this contract")
	// ErrInvalidTransition is returned when the requested status change is not
	// in the allowed map, or when the row was not in the expected status.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrNotEditable is returned when editing a contract or milestone that has
	// left its editable state.
	ErrNotEditable = errors.New("no longer editable")
	// ErrValidation covers missing or malformed input fields.
	ErrValidation = errors.New("invalid input")
)

// Store is the persistence surface the service needs. Satisfied by
// *Repository; tests swap in an in-memory implementation.
type Store interface {
	Create(ctx context.Context, c *models.Contract) error
	CreateTx(ctx context.Context, q querier, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	Update(ctx context.Context, c *models.Contract) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	CreateMilestone(ctx context.Context, m *models.Milestone) error
	CreateMilestoneTx(ctx context.Context, q querier, m *models.Milestone) error
	GetMilestoneByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListMilestones(ctx context.Context, contractID uuid.UUID) ([]*models.Milestone, error)
	UpdateMilestone(ctx context.Context, m *models.Milestone) error
	UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	DeleteMilestone(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	store  Store
	notify notify.EnqueueFunc
}

func NewService(store Store, notifyFn notify.EnqueueFunc) *Service {
	return &Service{store: store, notify: notifyFn}
}

type CreateParams struct {
	ProjectID    uuid.UUID
	FreelancerID uuid.UUID
	Title        string
	Description  string
	Terms        string
	BudgetCents  int64
	Currency     string
	EndDate      *time.Time
}

// CreateDraft creates a contract in draft. Both parties see it, but escrow
// funding requires activation first.
func (s *Service) CreateDraft(ctx context.Context, p CreateParams, clientID uuid.UUID) (*models.Contract, error) {
	if p.Title == "" || p.BudgetCents <= 0 || p.FreelancerID == uuid.Nil {
		return nil, ErrValidation
	}
	c := &models.Contract{
		ProjectID:    p.ProjectID,
		ClientID:     clientID,
		FreelancerID: p.FreelancerID,
		Title:        p.Title,
		Description:  p.Description,
		Terms:        p.Terms,
		BudgetCents:  p.BudgetCents,
		Currency:     p.Currency,
		Status:       models.ContractStatusDraft,
		EndDate:      p.EndDate,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.fanout(ctx, c.FreelancerID, models.NotifyContractCreated, c.ID)
	return c, nil
}

// CreateFromProposalTx builds an active contract from an accepted proposal,
// copying its milestone plan as pending milestones. Runs in the caller's
// transaction so acceptance and contract creation commit together.
func (s *Service) CreateFromProposalTx(ctx context.Context, tx pgx.Tx, project *models.Project, p *models.Proposal) (*models.Contract, error) {
	now := time.Now()
	c := &models.Contract{
		ProjectID:    project.ID,
		ProposalID:   &p.ID,
		ClientID:     project.ClientID,
		FreelancerID: p.FreelancerID,
		Title:        project.Title,
		Description:  project.Description,
		Terms:        p.CoverLetter,
		BudgetCents:  p.ProposedBudgetCents,
		Currency:     project.Currency,
		Status:       models.ContractStatusActive,
		StartDate:    &now,
	}
	if err := s.store.CreateTx(ctx, tx, c); err != nil {
		return nil, err
	}

	if len(p.Milestones) > 0 {
		var plan []models.ProposalMilestone
		if err := json.Unmarshal(p.Milestones, &plan); err != nil {
			return nil, err
		}
		for _, pm := range plan {
			m := &models.Milestone{
				ContractID:  c.ID,
				Title:       pm.Title,
				Description: pm.Description,
				AmountCents: pm.AmountCents,
				Status:      models.MilestoneStatusPending,
			}
			if err := s.store.CreateMilestoneTx(ctx, tx, m); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// Get returns the contract, visible to its parties only.
func (s *Service) Get(ctx context.Context, id, requesterID uuid.UUID) (*models.Contract, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID && requesterID != c.FreelancerID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	return s.store.ListByUser(ctx, userID)
}

// UpdateStatus moves the contract through its lifecycle. Activation,
// completion and cancellation belong to the client; either party may raise a
// dispute.
func (s *Service) UpdateStatus(ctx context.Context, id, requesterID uuid.UUID, to string) (*models.Contract, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	isClient := requesterID == c.ClientID
	isFreelancer := requesterID == c.FreelancerID
	if !isClient && !isFreelancer {
		return nil, ErrForbidden
	}

	var from string
	switch to {
	case models.ContractStatusActive:
		from = models.ContractStatusDraft
		if !isClient {
			return nil, ErrForbidden
		}
	case models.ContractStatusCompleted, models.ContractStatusCancelled:
		from = models.ContractStatusActive
		if !isClient {
			return nil, ErrForbidden
		}
	case models.ContractStatusDisputed:
		from = models.ContractStatusActive
	default:
		return nil, ErrInvalidTransition
	}

	ok, err := s.store.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	other := c.FreelancerID
	if requesterID == c.FreelancerID {
		other = c.ClientID
	}
	s.fanout(ctx, other, models.NotifyContractUpdated, c.ID)
	return s.store.GetByID(ctx, id)
}

type UpdateParams struct {
	Title       *string
	Description *string
	Terms       *string
	BudgetCents *int64
	EndDate     *time.Time
}

// Update edits contract terms. Only the client, only while still a draft.
func (s *Service) Update(ctx context.Context, id, requesterID uuid.UUID, p UpdateParams) (*models.Contract, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID {
		return nil, ErrForbidden
	}
	if c.Status != models.ContractStatusDraft {
		return nil, ErrNotEditable
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Terms != nil {
		c.Terms = *p.Terms
	}
	if p.BudgetCents != nil {
		if *p.BudgetCents <= 0 {
			return nil, ErrValidation
		}
		c.BudgetCents = *p.BudgetCents
	}
	if p.EndDate != nil {
		c.EndDate = p.EndDate
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a draft. The repository refuses non-draft rows even if the
// status changed between the read and the delete.
func (s *Service) Delete(ctx context.Context, id, requesterID uuid.UUID) error {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if requesterID != c.ClientID {
		return ErrForbidden
	}
	if c.Status != models.ContractStatusDraft {
		return ErrNotEditable
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEditable
	}
	return nil
}

type MilestoneParams struct {
	Title       string
	Description string
	AmountCents int64
	DueDate     *time.Time
}

// AddMilestone appends a pending milestone. Client only, while the contract
// is a draft or active.
func (s *Service) AddMilestone(ctx context.Context, contractID, requesterID uuid.UUID, p MilestoneParams) (*models.Milestone, error) {
	c, err := s.store.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID {
		return nil, ErrForbidden
	}
	if c.Status != models.ContractStatusDraft && c.Status != models.ContractStatusActive {
		return nil, ErrNotEditable
	}
	if p.Title == "" || p.AmountCents <= 0 {
		return nil, ErrValidation
	}
	m := &models.Milestone{
		ContractID:  c.ID,
		Title:       p.Title,
		Description: p.Description,
		AmountCents: p.AmountCents,
		Status:      models.MilestoneStatusPending,
		DueDate:     p.DueDate,
	}
	if err := s.store.CreateMilestone(ctx, m); err != nil {
		return nil, err
	}
	s.fanout(ctx, c.FreelancerID, models.NotifyMilestoneUpdated, m.ID)
	return m, nil
}

func (s *Service) ListMilestones(ctx context.Context, contractID, requesterID uuid.UUID) ([]*models.Milestone, error) {
	if _, err := s.Get(ctx, contractID, requesterID); err != nil {
		return nil, err
	}
	return s.store.ListMilestones(ctx, contractID)
}

type MilestoneUpdateParams struct {
	Title       *string
	Description *string
	AmountCents *int64
	DueDate     *time.Time
}

// UpdateMilestone edits a milestone's terms. Client only, pending only; once
// work starts the terms are fixed.
func (s *Service) UpdateMilestone(ctx context.Context, milestoneID, requesterID uuid.UUID, p MilestoneUpdateParams) (*models.Milestone, error) {
	m, c, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID {
		return nil, ErrForbidden
	}
	if m.Status != models.MilestoneStatusPending {
		return nil, ErrNotEditable
	}
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.AmountCents != nil {
		if *p.AmountCents <= 0 {
			return nil, ErrValidation
		}
		m.AmountCents = *p.AmountCents
	}
	if p.DueDate != nil {
		m.DueDate = p.DueDate
	}
	if err := s.store.UpdateMilestone(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// milestoneTransitions maps each allowed move to who may make it. paid is
// absent: only the escrow engine sets it, transactionally with a release.
var milestoneTransitions = map[string]map[string]string{
	models.MilestoneStatusInProgress: {
		models.MilestoneStatusPending:              "client",
		models.MilestoneStatusSubmittedForApproval: "client", // rejection
	},
	models.MilestoneStatusSubmittedForApproval: {
		models.MilestoneStatusInProgress: "freelancer",
	},
	models.MilestoneStatusApproved: {
		models.MilestoneStatusSubmittedForApproval: "client",
	},
}

// UpdateMilestoneStatus moves a milestone through the delivery flow. The
// freelancer may only submit in-progress work for approval; everything else
// belongs to the client.
func (s *Service) UpdateMilestoneStatus(ctx context.Context, milestoneID, requesterID uuid.UUID, to string) (*models.Milestone, error) {
	m, c, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	var role string
	switch requesterID {
	case c.ClientID:
		role = "client"
	case c.FreelancerID:
		role = "freelancer"
	default:
		return nil, ErrForbidden
	}

	froms, ok := milestoneTransitions[to]
	if !ok {
		return nil, ErrInvalidTransition
	}
	allowedRole, ok := froms[m.Status]
	if !ok {
		return nil, ErrInvalidTransition
	}
	if role != allowedRole {
		return nil, ErrForbidden
	}

	moved, err := s.store.UpdateMilestoneStatus(ctx, milestoneID, m.Status, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrInvalidTransition
	}

	other := c.FreelancerID
	if role == "freelancer" {
		other = c.ClientID
	}
	s.fanout(ctx, other, models.NotifyMilestoneUpdated, m.ID)
	return s.store.GetMilestoneByID(ctx, milestoneID)
}

// DeleteMilestone removes a pending milestone. Client only.
func (s *Service) DeleteMilestone(ctx context.Context, milestoneID, requesterID uuid.UUID) error {
	m, c, err := s.loadMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if requesterID != c.ClientID {
		return ErrForbidden
	}
	if m.Status != models.MilestoneStatusPending {
		return ErrNotEditable
	}
	ok, err := s.store.DeleteMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEditable
	}
	return nil
}

func (s *Service) loadMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Contract, error) {
	m, err := s.store.GetMilestoneByID(ctx, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.store.GetByID(ctx, m.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return m, c, nil
}

// fanout enqueues a notification. Best effort: delivery failures never fail
// the operation that triggered them.
func (s *Service) fanout(ctx context.Context, userID uuid.UUID, event string, subject uuid.UUID) {
	if s.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"id": subject})
	_ = s.notify(ctx, notify.UserNotificationArgs{UserID: userID, Event: event, Payload: payload})
}
