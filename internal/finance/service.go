package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigchain/backend/internal/ledger"
	"github.com/gigchain/backend/internal/models"
	"github.com/gigchain/backend/internal/notify"
	"github.com/gigchain/backend/internal/payout"
)

var (
	// ErrInvalidAmount is returned for non-positive deposit or withdrawal
	// amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrWalletNotOwned is returned when the wallet belongs to someone else.
	ErrWalletNotOwned = errors.New("wallet does not belong to caller")
	// ErrNotProcessing is returned when settling a withdrawal that is not a
	// processing withdrawal entry.
	ErrNotProcessing = errors.New("entry is not a processing withdrawal")
	// ErrForeignIdempotencyKey is returned when the idempotency key was first
	// used by a different user. Keys are scoped to their original requester.
	ErrForeignIdempotencyKey = errors.New("idempotency key used by another user")
)

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletStore resolves wallets for ownership checks.
type WalletStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
}

// Service handles money entering and leaving the platform. Deposits credit
// immediately; withdrawals debit immediately and settle through the payout
// worker.
type Service struct {
	pool             TxBeginner
	wallets          WalletStore
	ledger           ledger.Store
	notify           notify.EnqueueTxFunc
	enqueuePayout    payout.EnqueueTxFunc
	depositFeeBps    int64
	withdrawalFeeBps int64
}

func NewService(
	pool TxBeginner,
	wallets WalletStore,
	ledgerStore ledger.Store,
	notifyFn notify.EnqueueTxFunc,
	enqueuePayout payout.EnqueueTxFunc,
	depositFeeBps, withdrawalFeeBps int64,
) *Service {
	return &Service{
		pool:             pool,
		wallets:          wallets,
		ledger:           ledgerStore,
		notify:           notifyFn,
		enqueuePayout:    enqueuePayout,
		depositFeeBps:    depositFeeBps,
		withdrawalFeeBps: withdrawalFeeBps,
	}
}

type DepositParams struct {
	WalletID       uuid.UUID
	AmountCents    int64
	IdempotencyKey string
}

// Deposit credits the wallet with the amount net of the deposit fee. One
// ledger entry, completed immediately.
func (s *Service) Deposit(ctx context.Context, p DepositParams, requesterID uuid.UUID) (*models.LedgerEntry, error) {
	if p.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if p.IdempotencyKey != "" {
		if existing, err := s.ledger.GetEntryByIdempotencyKey(ctx, p.IdempotencyKey); err == nil {
			if existing.UserID != requesterID {
				return nil, ErrForeignIdempotencyKey
			}
			return existing, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	w, err := s.wallets.GetByID(ctx, p.WalletID)
	if err != nil {
		return nil, err
	}
	if w.UserID != requesterID {
		return nil, ErrWalletNotOwned
	}

	fee := p.AmountCents * s.depositFeeBps / 10000
	net := p.AmountCents - fee

	entry := &models.LedgerEntry{
		WalletID:    w.ID,
		UserID:      requesterID,
		AmountCents: net,
		Currency:    w.Currency,
		Kind:        models.EntryKindDeposit,
		FeeCents:    &fee,
		Description: fmt.Sprintf("Deposit of %d %s (fee %d)", p.AmountCents, w.Currency, fee),
	}
	if p.IdempotencyKey != "" {
		entry.IdempotencyKey = &p.IdempotencyKey
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.ApplyEntry(ctx, tx, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && p.IdempotencyKey != "" {
			_ = tx.Rollback(ctx)
			existing, getErr := s.ledger.GetEntryByIdempotencyKey(ctx, p.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			if existing.UserID != requesterID {
				return nil, ErrForeignIdempotencyKey
			}
			return existing, nil
		}
		return nil, err
	}
	if err := s.notifyTx(ctx, tx, requesterID, models.NotifyDepositCompleted, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

type WithdrawParams struct {
	WalletID       uuid.UUID
	AmountCents    int64
	IdempotencyKey string
}

// Withdraw debits the gross amount and leaves the entry in processing until
// the payout worker hears back from the provider. The debit and the job
// enqueue commit together.
func (s *Service) Withdraw(ctx context.Context, p WithdrawParams, requesterID uuid.UUID) (*models.LedgerEntry, error) {
	if p.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if p.IdempotencyKey != "" {
		if existing, err := s.ledger.GetEntryByIdempotencyKey(ctx, p.IdempotencyKey); err == nil {
			if existing.UserID != requesterID {
				return nil, ErrForeignIdempotencyKey
			}
			return existing, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	w, err := s.wallets.GetByID(ctx, p.WalletID)
	if err != nil {
		return nil, err
	}
	if w.UserID != requesterID {
		return nil, ErrWalletNotOwned
	}

	fee := p.AmountCents * s.withdrawalFeeBps / 10000
	net := p.AmountCents - fee

	entry := &models.LedgerEntry{
		WalletID:    w.ID,
		UserID:      requesterID,
		AmountCents: -p.AmountCents,
		Currency:    w.Currency,
		Kind:        models.EntryKindWithdrawal,
		Status:      models.EntryStatusProcessing,
		FeeCents:    &fee,
		Description: fmt.Sprintf("Withdrawal of %d %s (fee %d, payout %d)", p.AmountCents, w.Currency, fee, net),
	}
	if p.IdempotencyKey != "" {
		entry.IdempotencyKey = &p.IdempotencyKey
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.ApplyEntry(ctx, tx, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && p.IdempotencyKey != "" {
			_ = tx.Rollback(ctx)
			existing, getErr := s.ledger.GetEntryByIdempotencyKey(ctx, p.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			if existing.UserID != requesterID {
				return nil, ErrForeignIdempotencyKey
			}
			return existing, nil
		}
		return nil, err
	}
	if s.enqueuePayout != nil {
		err := s.enqueuePayout(ctx, tx, payout.PayoutArgs{
			EntryID:     entry.ID,
			WalletID:    w.ID,
			UserID:      requesterID,
			AmountCents: net,
			FeeCents:    fee,
			Currency:    w.Currency,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkWithdrawalCompleted settles a processing withdrawal after the provider
// confirmed the payout.
func (s *Service) MarkWithdrawalCompleted(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.processingWithdrawal(ctx, entryID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.CompleteEntry(ctx, tx, entry.ID); err != nil {
		return err
	}
	if err := s.notifyTx(ctx, tx, entry.UserID, models.NotifyWithdrawalUpdate, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkWithdrawalFailed fails a processing withdrawal and refunds the gross
// amount to the wallet, in one transaction.
func (s *Service) MarkWithdrawalFailed(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.processingWithdrawal(ctx, entryID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.FailEntry(ctx, tx, entry.ID); err != nil {
		return err
	}
	refund := &models.LedgerEntry{
		WalletID:    entry.WalletID,
		UserID:      entry.UserID,
		AmountCents: -entry.AmountCents,
		Currency:    entry.Currency,
		Kind:        models.EntryKindRefund,
		Description: fmt.Sprintf("Withdrawal reversal for entry %s", entry.ID),
	}
	if err := s.ledger.ApplyEntry(ctx, tx, refund); err != nil {
		return err
	}
	if err := s.notifyTx(ctx, tx, entry.UserID, models.NotifyWithdrawalUpdate, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListEntries returns the caller's full ledger history across wallets.
func (s *Service) ListEntries(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.ledger.ListByUser(ctx, userID)
}

func (s *Service) processingWithdrawal(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	entry, err := s.ledger.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Kind != models.EntryKindWithdrawal || entry.Status != models.EntryStatusProcessing {
		return nil, ErrNotProcessing
	}
	return entry, nil
}

func (s *Service) notifyTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, event string, entry *models.LedgerEntry) error {
	if s.notify == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"entry_id":     entry.ID,
		"kind":         entry.Kind,
		"status":       entry.Status,
		"amount_cents": entry.AmountCents,
		"currency":     entry.Currency,
	})
	if err != nil {
		return err
	}
	return s.notify(ctx, tx, notify.UserNotificationArgs{UserID: userID, Event: event, Payload: payload})
}
