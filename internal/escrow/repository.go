package escrow

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

const escrowColumns = `id, contract_id, milestone_id, wallet_id, funded_by, amount_cents,
	platform_fee_cents, total_cents, currency, status, fee_entry_id, hold_entry_id,
	release_entry_id, resolved_by, resolved_at, idempotency_key, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, e *models.EscrowTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrow_transactions (id, contract_id, milestone_id, wallet_id, funded_by,
			amount_cents, platform_fee_cents, total_cents, currency, status,
			fee_entry_id, hold_entry_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`, e.ID, e.ContractID, e.MilestoneID, e.WalletID, e.FundedBy,
		e.AmountCents, e.PlatformFeeCents, e.TotalCents, e.Currency, e.Status,
		e.FeeEntryID, e.HoldEntryID, e.IdempotencyKey).Scan(&e.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = $1`, id)
	return scanEscrow(row)
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (*models.EscrowTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_transactions WHERE idempotency_key = $1`, key)
	return scanEscrow(row)
}

// Transition conditionally moves the escrow from one status to another,
// stamping who resolved it. Returns false when the row was not in the
// expected status: the caller lost the race or the state is terminal.
// This conditional UPDATE is what serializes concurrent release/refund/
// dispute attempts on the same escrow.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string, actor uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = $3, resolved_by = $4, resolved_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to, actor)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetReleaseEntryTx(ctx context.Context, tx pgx.Tx, id, entryID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrow_transactions SET release_entry_id = $2 WHERE id = $1
	`, id, entryID)
	return err
}

func (r *Repository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.EscrowTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+` FROM escrow_transactions WHERE contract_id = $1 ORDER BY created_at DESC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EscrowTransaction
	for rows.Next() {
		var e models.EscrowTransaction
		if err := rows.Scan(&e.ID, &e.ContractID, &e.MilestoneID, &e.WalletID, &e.FundedBy,
			&e.AmountCents, &e.PlatformFeeCents, &e.TotalCents, &e.Currency, &e.Status,
			&e.FeeEntryID, &e.HoldEntryID, &e.ReleaseEntryID, &e.ResolvedBy, &e.ResolvedAt,
			&e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func scanEscrow(row pgx.Row) (*models.EscrowTransaction, error) {
	var e models.EscrowTransaction
	err := row.Scan(&e.ID, &e.ContractID, &e.MilestoneID, &e.WalletID, &e.FundedBy,
		&e.AmountCents, &e.PlatformFeeCents, &e.TotalCents, &e.Currency, &e.Status,
		&e.FeeEntryID, &e.HoldEntryID, &e.ReleaseEntryID, &e.ResolvedBy, &e.ResolvedAt,
		&e.IdempotencyKey, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
