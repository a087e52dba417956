package projects

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigchain/backend/internal/models"
	"github.com/gigchain/backend/internal/notify"
)

var (
	// ErrForbidden is returned when the caller may not act on this project or
	// proposal.
	ErrForbidden = errors.New("not authorized for this project")
	// ErrValidation covers missing or malformed input fields.
	ErrValidation = errors.New("invalid input")
	// ErrNotOpen is returned when proposing on a project no longer accepting
	// proposals.
	ErrNotOpen = errors.New("project is not open")
	// ErrOwnProject is returned when a client proposes on their own project.
	ErrOwnProject = errors.New("cannot propose on own project")
	// ErrAlreadyProposed is returned on a second proposal for the same project.
	ErrAlreadyProposed = errors.New("proposal already submitted")
	// ErrNotPending is returned when deciding a proposal that was already
	// decided or withdrawn.
	ErrNotPending = errors.New("proposal is not pending")
)

// TxBeginner abstracts transaction creation for the acceptance flow.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the persistence surface the service needs. Satisfied by
// *Repository.
type Store interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListOpen(ctx context.Context, limit int) ([]*models.Project, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)

	CreateProposal(ctx context.Context, p *models.Proposal) error
	GetProposalByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ListProposals(ctx context.Context, projectID uuid.UUID) ([]*models.Proposal, error)
	HasProposal(ctx context.Context, projectID, freelancerID uuid.UUID) (bool, error)
	SetProposalStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
	RejectSiblingsTx(ctx context.Context, tx pgx.Tx, projectID, acceptedID uuid.UUID) error
	SetProposalStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// ContractCreator turns an accepted proposal into an active contract inside
// the acceptance transaction. Satisfied by the contracts service.
type ContractCreator interface {
	CreateFromProposalTx(ctx context.Context, tx pgx.Tx, project *models.Project, p *models.Proposal) (*models.Contract, error)
}

type Service struct {
	pool      TxBeginner
	repo      Store
	contracts ContractCreator
	notify    notify.EnqueueFunc
}

func NewService(pool TxBeginner, repo Store, contracts ContractCreator, notifyFn notify.EnqueueFunc) *Service {
	return &Service{pool: pool, repo: repo, contracts: contracts, notify: notifyFn}
}

type CreateProjectParams struct {
	Title       string
	Description string
	BudgetCents int64
	Currency    string
	Skills      []string
}

func (s *Service) Create(ctx context.Context, p CreateProjectParams, clientID uuid.UUID) (*models.Project, error) {
	if p.Title == "" || p.BudgetCents <= 0 {
		return nil, ErrValidation
	}
	proj := &models.Project{
		ClientID:    clientID,
		Title:       p.Title,
		Description: p.Description,
		BudgetCents: p.BudgetCents,
		Currency:    p.Currency,
		Skills:      p.Skills,
		Status:      models.ProjectStatusOpen,
	}
	if err := s.repo.Create(ctx, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListOpen(ctx context.Context, limit int) ([]*models.Project, error) {
	return s.repo.ListOpen(ctx, limit)
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error) {
	return s.repo.ListByClient(ctx, clientID)
}

type UpdateProjectParams struct {
	Title       *string
	Description *string
	BudgetCents *int64
	Skills      []string
	Status      *string
}

// Update edits a project. Owner only. Status may only move to cancelled here;
// in_progress and completed follow from contract activity.
func (s *Service) Update(ctx context.Context, id, requesterID uuid.UUID, p UpdateProjectParams) (*models.Project, error) {
	proj, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if proj.ClientID != requesterID {
		return nil, ErrForbidden
	}
	if p.Title != nil {
		proj.Title = *p.Title
	}
	if p.Description != nil {
		proj.Description = *p.Description
	}
	if p.BudgetCents != nil {
		if *p.BudgetCents <= 0 {
			return nil, ErrValidation
		}
		proj.BudgetCents = *p.BudgetCents
	}
	if p.Skills != nil {
		proj.Skills = p.Skills
	}
	if p.Status != nil {
		if *p.Status != models.ProjectStatusCancelled || proj.Status != models.ProjectStatusOpen {
			return nil, ErrValidation
		}
		proj.Status = *p.Status
	}
	if err := s.repo.Update(ctx, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

type ProposalParams struct {
	ProjectID            uuid.UUID
	CoverLetter          string
	ProposedBudgetCents  int64
	ProposedDurationDays *int
	Milestones           json.RawMessage
}

// Propose submits a proposal on an open project. One per freelancer per
// project; clients cannot propose on their own work.
func (s *Service) Propose(ctx context.Context, p ProposalParams, freelancerID uuid.UUID) (*models.Proposal, error) {
	if p.ProposedBudgetCents <= 0 {
		return nil, ErrValidation
	}
	proj, err := s.repo.GetByID(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	if proj.ClientID == freelancerID {
		return nil, ErrOwnProject
	}
	if proj.Status != models.ProjectStatusOpen {
		return nil, ErrNotOpen
	}
	exists, err := s.repo.HasProposal(ctx, proj.ID, freelancerID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyProposed
	}

	var plan json.RawMessage
	if len(p.Milestones) > 0 {
		if err := validatePlan(p.Milestones); err != nil {
			return nil, err
		}
		plan = p.Milestones
	}

	prop := &models.Proposal{
		ProjectID:            proj.ID,
		FreelancerID:         freelancerID,
		CoverLetter:          p.CoverLetter,
		ProposedBudgetCents:  p.ProposedBudgetCents,
		ProposedDurationDays: p.ProposedDurationDays,
		Milestones:           plan,
		Status:               models.ProposalStatusPending,
	}
	if err := s.repo.CreateProposal(ctx, prop); err != nil {
		return nil, err
	}
	s.fanout(ctx, proj.ClientID, models.NotifyProposalReceived, prop.ID)
	return prop, nil
}

// ListProposals returns a project's proposals. The client sees all of them;
// a freelancer sees only their own.
func (s *Service) ListProposals(ctx context.Context, projectID, requesterID uuid.UUID) ([]*models.Proposal, error) {
	proj, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListProposals(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if requesterID == proj.ClientID {
		return all, nil
	}
	var mine []*models.Proposal
	for _, p := range all {
		if p.FreelancerID == requesterID {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

// Accept marks the proposal accepted, rejects its pending siblings, moves the
// project to in_progress and creates the contract, all in one transaction.
// The conditional proposal update makes concurrent accepts resolve to one
// contract.
func (s *Service) Accept(ctx context.Context, proposalID, requesterID uuid.UUID) (*models.Contract, error) {
	prop, err := s.repo.GetProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	proj, err := s.repo.GetByID(ctx, prop.ProjectID)
	if err != nil {
		return nil, err
	}
	if proj.ClientID != requesterID {
		return nil, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.repo.SetProposalStatusTx(ctx, tx, prop.ID, models.ProposalStatusPending, models.ProposalStatusAccepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}
	if err := s.repo.RejectSiblingsTx(ctx, tx, proj.ID, prop.ID); err != nil {
		return nil, err
	}
	if _, err := s.repo.SetStatusTx(ctx, tx, proj.ID, models.ProjectStatusOpen, models.ProjectStatusInProgress); err != nil {
		return nil, err
	}

	c, err := s.contracts.CreateFromProposalTx(ctx, tx, proj, prop)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.fanout(ctx, prop.FreelancerID, models.NotifyProposalDecided, prop.ID)
	return c, nil
}

// Reject marks a pending proposal rejected. Client only.
func (s *Service) Reject(ctx context.Context, proposalID, requesterID uuid.UUID) (*models.Proposal, error) {
	prop, err := s.repo.GetProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	proj, err := s.repo.GetByID(ctx, prop.ProjectID)
	if err != nil {
		return nil, err
	}
	if proj.ClientID != requesterID {
		return nil, ErrForbidden
	}
	ok, err := s.repo.SetProposalStatus(ctx, prop.ID, models.ProposalStatusPending, models.ProposalStatusRejected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}
	s.fanout(ctx, prop.FreelancerID, models.NotifyProposalDecided, prop.ID)
	return s.repo.GetProposalByID(ctx, prop.ID)
}

// Withdraw lets a freelancer pull a pending proposal.
func (s *Service) Withdraw(ctx context.Context, proposalID, requesterID uuid.UUID) (*models.Proposal, error) {
	prop, err := s.repo.GetProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if prop.FreelancerID != requesterID {
		return nil, ErrForbidden
	}
	ok, err := s.repo.SetProposalStatus(ctx, prop.ID, models.ProposalStatusPending, models.ProposalStatusWithdrawn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}
	return s.repo.GetProposalByID(ctx, prop.ID)
}

func (s *Service) fanout(ctx context.Context, userID uuid.UUID, event string, subject uuid.UUID) {
	if s.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"id": subject})
	_ = s.notify(ctx, notify.UserNotificationArgs{UserID: userID, Event: event, Payload: payload})
}
