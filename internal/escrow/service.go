package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigchain/backend/internal/models"
	"github.com/gigchain/backend/internal/notify"
)

var (
	// ErrInvalidAmount is returned when funding with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrWalletNotOwned is returned when the funding wallet belongs to someone else.
	ErrWalletNotOwned = errors.New("wallet does not belong to caller")
	// ErrForbidden is returned when the caller may not perform this escrow action.
	ErrForbidden = errors.New("not authorized for this escrow action")
	// ErrInvalidState is returned when the escrow or contract status does not
	// allow the action. Escrow transitions are one-way out of funded.
	ErrInvalidState = errors.New("action not valid in current state")
	// ErrInvalidMilestone is returned when the milestone is not on the contract.
	ErrInvalidMilestone = errors.New("milestone does not belong to contract")
	// ErrNoPayoutWallet is returned when the recipient has no active wallet in
	// the escrow's currency.
	ErrNoPayoutWallet = errors.New("recipient has no wallet for this currency")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EscrowStore is the escrow transaction persistence the engine needs.
type EscrowStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.EscrowTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.EscrowTransaction, error)
	Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string, actor uuid.UUID) (bool, error)
	SetReleaseEntryTx(ctx context.Context, tx pgx.Tx, id, entryID uuid.UUID) error
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.EscrowTransaction, error)
}

// WalletStore resolves wallets for ownership checks and payout routing.
type WalletStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetDefaultByUser(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
}

// ContractStore resolves the contract an escrow is held against.
type ContractStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
}

// MilestoneStore lets the engine verify and settle milestones. Satisfied by
// the contracts repository.
type MilestoneStore interface {
	GetMilestoneByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	MarkPaidTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// Ledger applies balance-affecting entries inside the engine's transaction.
type Ledger interface {
	ApplyEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// Service orchestrates the escrow state machine:
// funded -> released | refunded | disputed, all terminal.
// Every transition's writes happen in one transaction.
type Service struct {
	pool       TxBeginner
	escrows    EscrowStore
	wallets    WalletStore
	contracts  ContractStore
	milestones MilestoneStore
	ledger     Ledger
	notify     notify.EnqueueTxFunc
	feeBps     int64
}

func NewService(
	pool TxBeginner,
	escrows EscrowStore,
	wallets WalletStore,
	contracts ContractStore,
	milestones MilestoneStore,
	ledgerStore Ledger,
	notifyFn notify.EnqueueTxFunc,
	feeBps int64,
) *Service {
	return &Service{
		pool:       pool,
		escrows:    escrows,
		wallets:    wallets,
		contracts:  contracts,
		milestones: milestones,
		ledger:     ledgerStore,
		notify:     notifyFn,
		feeBps:     feeBps,
	}
}

// PlatformFee returns the platform's cut of a funded amount.
func (s *Service) PlatformFee(amountCents int64) int64 {
	return amountCents * s.feeBps / 10000
}

type FundParams struct {
	WalletID       uuid.UUID
	ContractID     uuid.UUID
	MilestoneID    *uuid.UUID
	AmountCents    int64
	IdempotencyKey string
}

// Fund moves amount out of the client's wallet into escrow. The debit, the
// fee and hold ledger entries, and the escrow record commit as one unit; any
// failure leaves the wallet untouched.
func (s *Service) Fund(ctx context.Context, p FundParams, requesterID uuid.UUID) (*models.EscrowTransaction, error) {
	if p.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	// Retried request: return the original result instead of double-funding.
	if p.IdempotencyKey != "" {
		if existing, err := s.escrows.GetByIdempotencyKey(ctx, p.IdempotencyKey); err == nil {
			// Keys are scoped to whoever used them first; a replay by anyone
			// else must not leak the original escrow.
			if existing.FundedBy != requesterID {
				return nil, ErrForbidden
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

	c, err := s.contracts.GetByID(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if c.ClientID != requesterID {
		return nil, ErrForbidden
	}
	if c.Status != models.ContractStatusActive {
		return nil, ErrInvalidState
	}
	if p.MilestoneID != nil {
		m, err := s.milestones.GetMilestoneByID(ctx, *p.MilestoneID)
		if err != nil {
			return nil, err
		}
		if m.ContractID != c.ID {
			return nil, ErrInvalidMilestone
		}
	}

	fee := s.PlatformFee(p.AmountCents)
	held := p.AmountCents - fee

	esc := &models.EscrowTransaction{
		ID:               uuid.New(),
		ContractID:       c.ID,
		MilestoneID:      p.MilestoneID,
		WalletID:         w.ID,
		FundedBy:         requesterID,
		AmountCents:      held,
		PlatformFeeCents: fee,
		TotalCents:       p.AmountCents,
		Currency:         w.Currency,
		Status:           models.EscrowStatusFunded,
	}
	if p.IdempotencyKey != "" {
		esc.IdempotencyKey = &p.IdempotencyKey
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	feeEntry := &models.LedgerEntry{
		WalletID:    w.ID,
		UserID:      requesterID,
		AmountCents: -fee,
		Currency:    w.Currency,
		Kind:        models.EntryKindFee,
		ContractID:  &c.ID,
		MilestoneID: p.MilestoneID,
		EscrowID:    &esc.ID,
		Description: escrowDescription("Platform fee", c.ID, p.MilestoneID),
	}
	if err := s.ledger.ApplyEntry(ctx, tx, feeEntry); err != nil {
		return nil, err
	}

	holdEntry := &models.LedgerEntry{
		WalletID:    w.ID,
		UserID:      requesterID,
		AmountCents: -held,
		Currency:    w.Currency,
		Kind:        models.EntryKindEscrow,
		ContractID:  &c.ID,
		MilestoneID: p.MilestoneID,
		EscrowID:    &esc.ID,
		Description: escrowDescription("Escrow funding", c.ID, p.MilestoneID),
	}
	if err := s.ledger.ApplyEntry(ctx, tx, holdEntry); err != nil {
		return nil, err
	}

	esc.FeeEntryID = feeEntry.ID
	esc.HoldEntryID = holdEntry.ID
	if err := s.escrows.CreateTx(ctx, tx, esc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && p.IdempotencyKey != "" {
			// Lost an idempotency race; the other request's result stands.
			_ = tx.Rollback(ctx)
			existing, getErr := s.escrows.GetByIdempotencyKey(ctx, p.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			if existing.FundedBy != requesterID {
				return nil, ErrForbidden
			}
			return existing, nil
		}
		return nil, err
	}

	if err := s.notifyTx(ctx, tx, c.FreelancerID, models.NotifyEscrowFunded, esc); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return esc, nil
}

// Release pays the held amount to the freelancer's wallet. Only the funding
// client may release. Exactly one of two concurrent release/refund/dispute
// calls can win the conditional transition.
func (s *Service) Release(ctx context.Context, escrowID, requesterID uuid.UUID) (*models.EscrowTransaction, error) {
	esc, c, err := s.loadForAction(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if requesterID != esc.FundedBy {
		return nil, ErrForbidden
	}

	// A milestone escrow pays out only after the client approved the work.
	if esc.MilestoneID != nil {
		m, err := s.milestones.GetMilestoneByID(ctx, *esc.MilestoneID)
		if err != nil {
			return nil, err
		}
		if m.Status != models.MilestoneStatusApproved {
			return nil, ErrInvalidState
		}
	}

	payout, err := s.wallets.GetDefaultByUser(ctx, c.FreelancerID, esc.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPayoutWallet
		}
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.Transition(ctx, tx, esc.ID, models.EscrowStatusFunded, models.EscrowStatusReleased, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	entry := &models.LedgerEntry{
		WalletID:    payout.ID,
		UserID:      c.FreelancerID,
		AmountCents: esc.AmountCents,
		Currency:    esc.Currency,
		Kind:        models.EntryKindRelease,
		ContractID:  &esc.ContractID,
		MilestoneID: esc.MilestoneID,
		EscrowID:    &esc.ID,
		Description: escrowDescription("Escrow release", esc.ContractID, esc.MilestoneID),
	}
	if err := s.ledger.ApplyEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.escrows.SetReleaseEntryTx(ctx, tx, esc.ID, entry.ID); err != nil {
		return nil, err
	}

	if esc.MilestoneID != nil {
		if err := s.milestones.MarkPaidTx(ctx, tx, *esc.MilestoneID); err != nil {
			return nil, err
		}
	}

	if err := s.notifyTx(ctx, tx, c.FreelancerID, models.NotifyEscrowReleased, esc); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.escrows.GetByID(ctx, esc.ID)
}

// Refund returns the held amount to the funding wallet. Allowed for the
// funding client, or for the freelancer declining payment.
func (s *Service) Refund(ctx context.Context, escrowID, requesterID uuid.UUID) (*models.EscrowTransaction, error) {
	esc, c, err := s.loadForAction(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if requesterID != esc.FundedBy && requesterID != c.FreelancerID {
		return nil, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.Transition(ctx, tx, esc.ID, models.EscrowStatusFunded, models.EscrowStatusRefunded, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	entry := &models.LedgerEntry{
		WalletID:    esc.WalletID,
		UserID:      esc.FundedBy,
		AmountCents: esc.AmountCents,
		Currency:    esc.Currency,
		Kind:        models.EntryKindRefund,
		ContractID:  &esc.ContractID,
		MilestoneID: esc.MilestoneID,
		EscrowID:    &esc.ID,
		Description: escrowDescription("Escrow refund", esc.ContractID, esc.MilestoneID),
	}
	if err := s.ledger.ApplyEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.escrows.SetReleaseEntryTx(ctx, tx, esc.ID, entry.ID); err != nil {
		return nil, err
	}

	if err := s.notifyTx(ctx, tx, esc.FundedBy, models.NotifyEscrowRefunded, esc); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.escrows.GetByID(ctx, esc.ID)
}

// Dispute freezes the escrow. Funds stay held on the escrow row; resolution
// is an external process and no further transition is possible here.
func (s *Service) Dispute(ctx context.Context, escrowID, requesterID uuid.UUID) (*models.EscrowTransaction, error) {
	esc, c, err := s.loadForAction(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID && requesterID != c.FreelancerID {
		return nil, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.Transition(ctx, tx, esc.ID, models.EscrowStatusFunded, models.EscrowStatusDisputed, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	// Notify the counterparty of whoever raised the dispute.
	other := c.ClientID
	if requesterID == c.ClientID {
		other = c.FreelancerID
	}
	if err := s.notifyTx(ctx, tx, other, models.NotifyEscrowDisputed, esc); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.escrows.GetByID(ctx, esc.ID)
}

// Get returns the escrow, visible only to the contract parties.
func (s *Service) Get(ctx context.Context, escrowID, requesterID uuid.UUID) (*models.EscrowTransaction, error) {
	esc, c, err := s.loadForAction(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID && requesterID != c.FreelancerID {
		return nil, ErrForbidden
	}
	return esc, nil
}

// ListByContract returns the contract's escrow history, newest first. Only
// the contract parties may see it.
func (s *Service) ListByContract(ctx context.Context, contractID, requesterID uuid.UUID) ([]*models.EscrowTransaction, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if requesterID != c.ClientID && requesterID != c.FreelancerID {
		return nil, ErrForbidden
	}
	return s.escrows.ListByContract(ctx, contractID)
}

func (s *Service) loadForAction(ctx context.Context, escrowID uuid.UUID) (*models.EscrowTransaction, *models.Contract, error) {
	esc, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.contracts.GetByID(ctx, esc.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return esc, c, nil
}

func (s *Service) notifyTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, event string, esc *models.EscrowTransaction) error {
	if s.notify == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"escrow_id":    esc.ID,
		"contract_id":  esc.ContractID,
		"amount_cents": esc.AmountCents,
		"currency":     esc.Currency,
	})
	if err != nil {
		return err
	}
	return s.notify(ctx, tx, notify.UserNotificationArgs{UserID: userID, Event: event, Payload: payload})
}

func escrowDescription(prefix string, contractID uuid.UUID, milestoneID *uuid.UUID) string {
	if milestoneID != nil {
		return fmt.Sprintf("%s for contract %s milestone %s", prefix, contractID, *milestoneID)
	}
	return fmt.Sprintf("%s for contract %s", prefix, contractID)
}
