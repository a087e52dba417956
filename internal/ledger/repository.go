package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

const entryColumns = `id, wallet_id, user_id, amount_cents, currency, kind, status,
	fee_cents, balance_after_cents, contract_id, milestone_id, escrow_id,
	description, idempotency_key, created_at, completed_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Debit atomically deducts amount from the wallet if the balance covers it.
// Returns ErrInsufficientFunds when the balance falls short, ErrNoRows when
// the wallet does not exist. Call within a transaction.
func (r *Repository) Debit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = now()
		WHERE id = $2 AND balance_cents >= $1
		RETURNING balance_cents
	`, amountCents, walletID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows covers both a missing wallet and a short balance.
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)
		`, walletID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, pgx.ErrNoRows
		}
		return 0, ErrInsufficientFunds
	}
	return newBalance, err
}

// Credit adds amount to the wallet and returns the new balance.
func (r *Repository) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance_cents = balance_cents + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance_cents
	`, amountCents, walletID).Scan(&newBalance)
	return newBalance, err
}

// InsertEntryTx inserts a ledger entry inside the given transaction.
func (r *Repository) InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, wallet_id, user_id, amount_cents, currency, kind, status,
			fee_cents, balance_after_cents, contract_id, milestone_id, escrow_id, description,
			idempotency_key, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`, e.ID, e.WalletID, e.UserID, e.AmountCents, e.Currency, e.Kind, e.Status,
		e.FeeCents, e.BalanceAfterCents, e.ContractID, e.MilestoneID, e.EscrowID,
		e.Description, e.IdempotencyKey, e.CompletedAt).Scan(&e.CreatedAt)
}

// UpdateEntryStatusTx moves an entry into a terminal status. Entries are
// otherwise immutable.
func (r *Repository) UpdateEntryStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, completedAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE ledger_entries SET status = $2, completed_at = $3 WHERE id = $1
	`, id, status, completedAt)
	return err
}

func (r *Repository) GetEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *Repository) GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	return scanEntry(row)
}

func (r *Repository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at DESC
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetBalance returns the wallet's current balance. Side-effect free.
func (r *Repository) GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance_cents FROM wallets WHERE id = $1`, walletID).Scan(&balance)
	return balance, err
}

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.WalletID, &e.UserID, &e.AmountCents, &e.Currency, &e.Kind, &e.Status,
		&e.FeeCents, &e.BalanceAfterCents, &e.ContractID, &e.MilestoneID, &e.EscrowID,
		&e.Description, &e.IdempotencyKey, &e.CreatedAt, &e.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.UserID, &e.AmountCents, &e.Currency, &e.Kind, &e.Status,
			&e.FeeCents, &e.BalanceAfterCents, &e.ContractID, &e.MilestoneID, &e.EscrowID,
			&e.Description, &e.IdempotencyKey, &e.CreatedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
