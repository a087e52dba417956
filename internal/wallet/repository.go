package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

const walletColumns = `id, user_id, currency, balance_cents, label, is_default, is_active, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, w *models.Wallet) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, currency, balance_cents, label, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING created_at, updated_at
	`, w.ID, w.UserID, w.Currency, w.BalanceCents, w.Label, w.IsDefault).Scan(&w.CreatedAt, &w.UpdatedAt)
}

// CreateDefault provisions the wallet created on user onboarding.
func (r *Repository) CreateDefault(ctx context.Context, userID uuid.UUID, currency string) error {
	w := &models.Wallet{
		UserID:    userID,
		Currency:  currency,
		IsDefault: true,
		Label:     "Main wallet",
	}
	return r.Create(ctx, w)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id).
		Scan(&w.ID, &w.UserID, &w.Currency, &w.BalanceCents, &w.Label, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Wallet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE user_id = $1 AND is_active ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Currency, &w.BalanceCents, &w.Label, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}

// GetDefaultByUser returns the user's default active wallet for the currency.
func (r *Repository) GetDefaultByUser(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE user_id = $1 AND currency = $2 AND is_active
		ORDER BY is_default DESC, created_at
		LIMIT 1
	`, userID, currency).
		Scan(&w.ID, &w.UserID, &w.Currency, &w.BalanceCents, &w.Label, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Update sets label and default flag. Promoting a wallet to default demotes
// the user's previous default in the same transaction.
func (r *Repository) Update(ctx context.Context, w *models.Wallet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if w.IsDefault {
		if _, err := tx.Exec(ctx, `
			UPDATE wallets SET is_default = FALSE, updated_at = now()
			WHERE user_id = $1 AND id <> $2 AND is_default
		`, w.UserID, w.ID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE wallets SET label = $2, is_default = $3, updated_at = now() WHERE id = $1
	`, w.ID, w.Label, w.IsDefault); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Deactivate soft-deletes the wallet. Rows are never hard-deleted while the
// ledger references them.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallets SET is_active = FALSE, is_default = FALSE, updated_at = now() WHERE id = $1
	`, id)
	return err
}
