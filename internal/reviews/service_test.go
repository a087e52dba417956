package reviews

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigchain/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks.
// ---------------------------------------------------------------------------

type mockReviewStore struct {
	mu      sync.Mutex
	reviews map[uuid.UUID]*models.Review
}

func newMockReviewStore() *mockReviewStore {
	return &mockReviewStore{reviews: make(map[uuid.UUID]*models.Review)}
}

func (m *mockReviewStore) Create(_ context.Context, rev *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.ContractID == rev.ContractID && existing.ReviewerID == rev.ReviewerID {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	rev.ID = uuid.New()
	rev.CreatedAt = time.Now()
	cp := *rev
	m.reviews[rev.ID] = &cp
	return nil
}

func (m *mockReviewStore) GetByID(_ context.Context, id uuid.UUID) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rev, ok := m.reviews[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rev
	return &cp, nil
}

func (m *mockReviewStore) ListByContract(_ context.Context, contractID uuid.UUID) ([]*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Review
	for _, rev := range m.reviews {
		if rev.ContractID == contractID {
			cp := *rev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockReviewStore) ListByRecipient(_ context.Context, recipientID uuid.UUID) ([]*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Review
	for _, rev := range m.reviews {
		if rev.RecipientID == recipientID {
			cp := *rev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockReviewStore) RatingSummary(_ context.Context, recipientID uuid.UUID) (int64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	var sum int
	for _, rev := range m.reviews {
		if rev.RecipientID == recipientID {
			count++
			sum += rev.Rating
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return count, float64(sum) / float64(count), nil
}

func (m *mockReviewStore) Update(_ context.Context, rev *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rev
	m.reviews[rev.ID] = &cp
	return nil
}

func (m *mockReviewStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reviews, id)
	return nil
}

func (m *mockReviewStore) backdate(id uuid.UUID, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[id].CreatedAt = m.reviews[id].CreatedAt.Add(-d)
}

type mockContractStore struct {
	contracts map[uuid.UUID]*models.Contract
}

func (m *mockContractStore) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type reviewFixture struct {
	svc        *Service
	store      *mockReviewStore
	client     uuid.UUID
	freelancer uuid.UUID
	contractID uuid.UUID
}

func newReviewFixture(contractStatus string) *reviewFixture {
	f := &reviewFixture{
		store:      newMockReviewStore(),
		client:     uuid.New(),
		freelancer: uuid.New(),
		contractID: uuid.New(),
	}
	contracts := &mockContractStore{contracts: map[uuid.UUID]*models.Contract{
		f.contractID: {
			ID:           f.contractID,
			ClientID:     f.client,
			FreelancerID: f.freelancer,
			Status:       contractStatus,
		},
	}}
	f.svc = NewService(f.store, contracts, nil)
	return f
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateReviewSetsCounterparty(t *testing.T) {
	f := newReviewFixture(models.ContractStatusCompleted)
	ctx := context.Background()

	rev, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 5, Comment: "great work"}, f.client)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rev.RecipientID != f.freelancer {
		t.Errorf("recipient: got %s, want freelancer %s", rev.RecipientID, f.freelancer)
	}

	rev2, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 4}, f.freelancer)
	if err != nil {
		t.Fatalf("freelancer review: %v", err)
	}
	if rev2.RecipientID != f.client {
		t.Errorf("recipient: got %s, want client %s", rev2.RecipientID, f.client)
	}
}

func TestCreateReviewGates(t *testing.T) {
	ctx := context.Background()

	// Contract not completed.
	active := newReviewFixture(models.ContractStatusActive)
	if _, err := active.svc.Create(ctx, CreateParams{ContractID: active.contractID, Rating: 5}, active.client); !errors.Is(err, ErrContractNotCompleted) {
		t.Errorf("active contract: expected ErrContractNotCompleted, got %v", err)
	}

	f := newReviewFixture(models.ContractStatusCompleted)

	// Outsider.
	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 5}, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider: expected ErrForbidden, got %v", err)
	}

	// Rating bounds.
	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 0}, f.client); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("rating 0: expected ErrInvalidRating, got %v", err)
	}
	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 6}, f.client); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("rating 6: expected ErrInvalidRating, got %v", err)
	}
}

func TestCreateReviewOncePerContract(t *testing.T) {
	f := newReviewFixture(models.ContractStatusCompleted)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 5}, f.client); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 1}, f.client); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("second review: expected ErrAlreadyReviewed, got %v", err)
	}

	// The counterparty still gets their own slot.
	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 4}, f.freelancer); err != nil {
		t.Errorf("counterparty review: %v", err)
	}
}

func TestReviewEditWindow(t *testing.T) {
	f := newReviewFixture(models.ContractStatusCompleted)
	ctx := context.Background()

	rev, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 3, Comment: "ok"}, f.client)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Within the window.
	rating := 4
	out, err := f.svc.Update(ctx, rev.ID, f.client, UpdateParams{Rating: &rating})
	if err != nil {
		t.Fatalf("Update within window: %v", err)
	}
	if out.Rating != 4 {
		t.Errorf("rating: got %d, want 4", out.Rating)
	}

	// Only the reviewer may touch it.
	if _, err := f.svc.Update(ctx, rev.ID, f.freelancer, UpdateParams{Rating: &rating}); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-reviewer edit: expected ErrForbidden, got %v", err)
	}

	// Past the window.
	f.store.backdate(rev.ID, models.ReviewEditWindow+time.Hour)
	if _, err := f.svc.Update(ctx, rev.ID, f.client, UpdateParams{Rating: &rating}); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("stale edit: expected ErrWindowClosed, got %v", err)
	}
	if err := f.svc.Delete(ctx, rev.ID, f.client); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("stale delete: expected ErrWindowClosed, got %v", err)
	}
}

func TestReviewDeleteWithinWindow(t *testing.T) {
	f := newReviewFixture(models.ContractStatusCompleted)
	ctx := context.Background()

	rev, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 2}, f.freelancer)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.svc.Delete(ctx, rev.ID, f.freelancer); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.GetByID(ctx, rev.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("review should be gone, got %v", err)
	}
}

func TestRatingSummary(t *testing.T) {
	f := newReviewFixture(models.ContractStatusCompleted)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, CreateParams{ContractID: f.contractID, Rating: 5}, f.client); err != nil {
		t.Fatalf("Create: %v", err)
	}

	count, avg, err := f.svc.RatingSummary(ctx, f.freelancer)
	if err != nil {
		t.Fatalf("RatingSummary: %v", err)
	}
	if count != 1 || avg != 5 {
		t.Errorf("summary: got count %d avg %v, want 1 and 5", count, avg)
	}

	count, avg, err = f.svc.RatingSummary(ctx, uuid.New())
	if err != nil {
		t.Fatalf("RatingSummary empty: %v", err)
	}
	if count != 0 || avg != 0 {
		t.Errorf("empty summary: got count %d avg %v", count, avg)
	}
}
