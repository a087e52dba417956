package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigchain/backend/internal/models"
)

// ErrInsufficientFunds is returned when a debit would take the balance negative.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Store is the interface the escrow and finance engines depend on. The wallet
// balance and the entry row are written in the caller's transaction so both
// commit together or neither does.
type Store interface {
	ApplyEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	CompleteEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	FailEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	GetEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) Store {
	return &service{repo: repo}
}

var _ Store = (*service)(nil)

// ApplyEntry moves the wallet balance by e.AmountCents (negative amounts are
// conditional debits) and records the entry, both inside tx. The entry gets
// an id, balance_after, and a completed status unless the caller set one.
func (s *service) ApplyEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	var newBalance int64
	var err error
	if e.AmountCents < 0 {
		newBalance, err = s.repo.Debit(ctx, tx, e.WalletID, -e.AmountCents)
	} else {
		newBalance, err = s.repo.Credit(ctx, tx, e.WalletID, e.AmountCents)
	}
	if err != nil {
		return err
	}
	e.BalanceAfterCents = &newBalance

	if e.Status == "" {
		e.Status = models.EntryStatusCompleted
	}
	if e.Status == models.EntryStatusCompleted && e.CompletedAt == nil {
		now := time.Now().UTC()
		e.CompletedAt = &now
	}
	return s.repo.InsertEntryTx(ctx, tx, e)
}

func (s *service) CompleteEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	now := time.Now().UTC()
	return s.repo.UpdateEntryStatusTx(ctx, tx, id, models.EntryStatusCompleted, &now)
}

func (s *service) FailEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return s.repo.UpdateEntryStatusTx(ctx, tx, id, models.EntryStatusFailed, nil)
}

func (s *service) GetEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	return s.repo.GetEntryByID(ctx, id)
}

func (s *service) GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return s.repo.GetEntryByIdempotencyKey(ctx, key)
}

func (s *service) GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, walletID)
}

func (s *service) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.repo.ListByWallet(ctx, walletID)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.repo.ListByUser(ctx, userID)
}
