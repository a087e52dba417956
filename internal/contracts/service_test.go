package contracts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigchain/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Store implementation.
// ---------------------------------------------------------------------------

type mockStore struct {
	mu         sync.Mutex
	contracts  map[uuid.UUID]*models.Contract
	milestones map[uuid.UUID]*models.Milestone
}

func newMockStore() *mockStore {
	return &mockStore{
		contracts:  make(map[uuid.UUID]*models.Contract),
		milestones: make(map[uuid.UUID]*models.Milestone),
	}
}

func (m *mockStore) Create(_ context.Context, c *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

func (m *mockStore) CreateTx(ctx context.Context, _ querier, c *models.Contract) error {
	return m.Create(ctx, c)
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Contract
	for _, c := range m.contracts {
		if c.ClientID == userID || c.FreelancerID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (m *mockStore) Update(_ context.Context, c *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

func (m *mockStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok || c.Status != models.ContractStatusDraft {
		return false, nil
	}
	delete(m.contracts, id)
	return true, nil
}

func (m *mockStore) CreateMilestone(_ context.Context, ms *models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms.ID = uuid.New()
	cp := *ms
	m.milestones[ms.ID] = &cp
	return nil
}

func (m *mockStore) CreateMilestoneTx(ctx context.Context, _ querier, ms *models.Milestone) error {
	return m.CreateMilestone(ctx, ms)
}

func (m *mockStore) GetMilestoneByID(_ context.Context, id uuid.UUID) (*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *ms
	return &cp, nil
}

func (m *mockStore) ListMilestones(_ context.Context, contractID uuid.UUID) ([]*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Milestone
	for _, ms := range m.milestones {
		if ms.ContractID == contractID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateMilestone(_ context.Context, ms *models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ms
	m.milestones[ms.ID] = &cp
	return nil
}

func (m *mockStore) UpdateMilestoneStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok || ms.Status != from {
		return false, nil
	}
	ms.Status = to
	return true, nil
}

func (m *mockStore) DeleteMilestone(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok || ms.Status != models.MilestoneStatusPending {
		return false, nil
	}
	delete(m.milestones, id)
	return true, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type contractFixture struct {
	svc        *Service
	store      *mockStore
	client     uuid.UUID
	freelancer uuid.UUID
}

func newContractFixture() *contractFixture {
	store := newMockStore()
	return &contractFixture{
		svc:        NewService(store, nil),
		store:      store,
		client:     uuid.New(),
		freelancer: uuid.New(),
	}
}

func (f *contractFixture) draft(t *testing.T) *models.Contract {
	t.Helper()
	c, err := f.svc.CreateDraft(context.Background(), CreateParams{
		FreelancerID: f.freelancer,
		Title:        "Build the landing page",
		BudgetCents:  50_000,
		Currency:     "USDC",
	}, f.client)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return c
}

func (f *contractFixture) active(t *testing.T) *models.Contract {
	t.Helper()
	c := f.draft(t)
	out, err := f.svc.UpdateStatus(context.Background(), c.ID, f.client, models.ContractStatusActive)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return out
}

func (f *contractFixture) milestone(t *testing.T, contractID uuid.UUID, status string) *models.Milestone {
	t.Helper()
	ms := &models.Milestone{
		ContractID:  contractID,
		Title:       "First deliverable",
		AmountCents: 10_000,
		Status:      status,
	}
	if err := f.store.CreateMilestone(context.Background(), ms); err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	return ms
}

// ---------------------------------------------------------------------------
// Contract lifecycle
// ---------------------------------------------------------------------------

func TestContractLifecycle(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()

	c := f.draft(t)
	if c.Status != models.ContractStatusDraft {
		t.Fatalf("new contract status: got %q, want draft", c.Status)
	}

	c, err := f.svc.UpdateStatus(ctx, c.ID, f.client, models.ContractStatusActive)
	if err != nil {
		t.Fatalf("draft->active: %v", err)
	}
	if c.Status != models.ContractStatusActive {
		t.Errorf("status: got %q, want active", c.Status)
	}

	c, err = f.svc.UpdateStatus(ctx, c.ID, f.client, models.ContractStatusCompleted)
	if err != nil {
		t.Fatalf("active->completed: %v", err)
	}
	if c.Status != models.ContractStatusCompleted {
		t.Errorf("status: got %q, want completed", c.Status)
	}

	// Completed is terminal.
	if _, err := f.svc.UpdateStatus(ctx, c.ID, f.client, models.ContractStatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed->active: expected ErrInvalidTransition, got %v", err)
	}
}

func TestContractStatusRoleGating(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()

	c := f.draft(t)
	if _, err := f.svc.UpdateStatus(ctx, c.ID, f.freelancer, models.ContractStatusActive); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer activating: expected ErrForbidden, got %v", err)
	}

	a := f.active(t)
	if _, err := f.svc.UpdateStatus(ctx, a.ID, f.freelancer, models.ContractStatusCompleted); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer completing: expected ErrForbidden, got %v", err)
	}

	// Either party may dispute.
	if _, err := f.svc.UpdateStatus(ctx, a.ID, f.freelancer, models.ContractStatusDisputed); err != nil {
		t.Errorf("freelancer disputing: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, a.ID, uuid.New(), models.ContractStatusCancelled); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider: expected ErrForbidden, got %v", err)
	}
}

func TestContractDeleteDraftOnly(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()

	c := f.draft(t)
	if err := f.svc.Delete(ctx, c.ID, f.freelancer); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer deleting: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(ctx, c.ID, f.client); err != nil {
		t.Fatalf("client deleting draft: %v", err)
	}

	a := f.active(t)
	if err := f.svc.Delete(ctx, a.ID, f.client); !errors.Is(err, ErrNotEditable) {
		t.Errorf("deleting active contract: expected ErrNotEditable, got %v", err)
	}
}

func TestContractEditDraftOnly(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()

	a := f.active(t)
	title := "New title"
	if _, err := f.svc.Update(ctx, a.ID, f.client, UpdateParams{Title: &title}); !errors.Is(err, ErrNotEditable) {
		t.Errorf("editing active contract: expected ErrNotEditable, got %v", err)
	}

	d := f.draft(t)
	out, err := f.svc.Update(ctx, d.ID, f.client, UpdateParams{Title: &title})
	if err != nil {
		t.Fatalf("editing draft: %v", err)
	}
	if out.Title != title {
		t.Errorf("title: got %q, want %q", out.Title, title)
	}
}

func TestContractVisibility(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()
	c := f.draft(t)

	if _, err := f.svc.Get(ctx, c.ID, f.freelancer); err != nil {
		t.Errorf("freelancer should see the contract: %v", err)
	}
	if _, err := f.svc.Get(ctx, c.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider: expected ErrForbidden, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Milestones
// ---------------------------------------------------------------------------

func TestMilestoneDeliveryFlow(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()
	c := f.active(t)
	ms := f.milestone(t, c.ID, models.MilestoneStatusPending)

	// Client starts the work.
	out, err := f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.client, models.MilestoneStatusInProgress)
	if err != nil {
		t.Fatalf("pending->in_progress: %v", err)
	}
	if out.Status != models.MilestoneStatusInProgress {
		t.Errorf("status: got %q", out.Status)
	}

	// Freelancer submits.
	out, err = f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.freelancer, models.MilestoneStatusSubmittedForApproval)
	if err != nil {
		t.Fatalf("in_progress->submitted: %v", err)
	}

	// Client rejects back to in_progress.
	out, err = f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.client, models.MilestoneStatusInProgress)
	if err != nil {
		t.Fatalf("rejection: %v", err)
	}
	if out.Status != models.MilestoneStatusInProgress {
		t.Errorf("status after rejection: got %q", out.Status)
	}

	// Resubmit and approve.
	if _, err := f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.freelancer, models.MilestoneStatusSubmittedForApproval); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	out, err = f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.client, models.MilestoneStatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != models.MilestoneStatusApproved {
		t.Errorf("status: got %q, want approved", out.Status)
	}
}

func TestMilestoneRoleGating(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()
	c := f.active(t)

	// Freelancer may not start work or approve.
	ms := f.milestone(t, c.ID, models.MilestoneStatusPending)
	if _, err := f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.freelancer, models.MilestoneStatusInProgress); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer starting work: expected ErrForbidden, got %v", err)
	}

	sub := f.milestone(t, c.ID, models.MilestoneStatusSubmittedForApproval)
	if _, err := f.svc.UpdateMilestoneStatus(ctx, sub.ID, f.freelancer, models.MilestoneStatusApproved); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer approving: expected ErrForbidden, got %v", err)
	}

	// Client may not submit for approval.
	inProg := f.milestone(t, c.ID, models.MilestoneStatusInProgress)
	if _, err := f.svc.UpdateMilestoneStatus(ctx, inProg.ID, f.client, models.MilestoneStatusSubmittedForApproval); !errors.Is(err, ErrForbidden) {
		t.Errorf("client submitting: expected ErrForbidden, got %v", err)
	}
}

func TestMilestonePaidNeverSetDirectly(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()
	c := f.active(t)
	ms := f.milestone(t, c.ID, models.MilestoneStatusApproved)

	if _, err := f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.client, models.MilestoneStatusPaid); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("client setting paid: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.UpdateMilestoneStatus(ctx, ms.ID, f.freelancer, models.MilestoneStatusPaid); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("freelancer setting paid: expected ErrInvalidTransition, got %v", err)
	}
}

func TestMilestoneEditPendingOnly(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()
	c := f.active(t)

	ms := f.milestone(t, c.ID, models.MilestoneStatusInProgress)
	amount := int64(20_000)
	if _, err := f.svc.UpdateMilestone(ctx, ms.ID, f.client, MilestoneUpdateParams{AmountCents: &amount}); !errors.Is(err, ErrNotEditable) {
		t.Errorf("editing started milestone: expected ErrNotEditable, got %v", err)
	}

	pend := f.milestone(t, c.ID, models.MilestoneStatusPending)
	out, err := f.svc.UpdateMilestone(ctx, pend.ID, f.client, MilestoneUpdateParams{AmountCents: &amount})
	if err != nil {
		t.Fatalf("editing pending milestone: %v", err)
	}
	if out.AmountCents != amount {
		t.Errorf("amount: got %d, want %d", out.AmountCents, amount)
	}
}

func TestMilestoneDeletePendingOnly(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()
	c := f.active(t)

	started := f.milestone(t, c.ID, models.MilestoneStatusInProgress)
	if err := f.svc.DeleteMilestone(ctx, started.ID, f.client); !errors.Is(err, ErrNotEditable) {
		t.Errorf("deleting started milestone: expected ErrNotEditable, got %v", err)
	}

	pend := f.milestone(t, c.ID, models.MilestoneStatusPending)
	if err := f.svc.DeleteMilestone(ctx, pend.ID, f.freelancer); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer deleting: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.DeleteMilestone(ctx, pend.ID, f.client); err != nil {
		t.Fatalf("client deleting pending milestone: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Creation from an accepted proposal
// ---------------------------------------------------------------------------

func TestCreateFromProposalCopiesPlan(t *testing.T) {
	f := newContractFixture()
	ctx := context.Background()

	project := &models.Project{
		ID:       uuid.New(),
		ClientID: f.client,
		Title:    "Marketplace backend",
		Currency: "USDC",
	}
	plan := []byte(`[
		{"title": "Schema design", "amount_cents": 20000},
		{"title": "API implementation", "amount_cents": 30000}
	]`)
	prop := &models.Proposal{
		ID:                  uuid.New(),
		ProjectID:           project.ID,
		FreelancerID:        f.freelancer,
		ProposedBudgetCents: 50_000,
		Milestones:          plan,
	}

	c, err := f.svc.CreateFromProposalTx(ctx, nil, project, prop)
	if err != nil {
		t.Fatalf("CreateFromProposalTx: %v", err)
	}
	if c.Status != models.ContractStatusActive {
		t.Errorf("status: got %q, want active", c.Status)
	}
	if c.StartDate == nil {
		t.Error("start date should be set")
	}
	if c.BudgetCents != 50_000 {
		t.Errorf("budget: got %d, want 50000", c.BudgetCents)
	}

	list, err := f.store.ListMilestones(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListMilestones: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("milestones: got %d, want 2", len(list))
	}
	for _, ms := range list {
		if ms.Status != models.MilestoneStatusPending {
			t.Errorf("milestone %q status: got %q, want pending", ms.Title, ms.Status)
		}
	}
}
