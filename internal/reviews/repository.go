package reviews

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

const reviewColumns = `id, contract_id, reviewer_id, recipient_id, rating, comment,
	created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a review. A unique index on (contract_id, reviewer_id)
// enforces one review per party per contract; violations surface as 23505.
func (r *Repository) Create(ctx context.Context, rev *models.Review) error {
	rev.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, contract_id, reviewer_id, recipient_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, rev.ID, rev.ContractID, rev.ReviewerID, rev.RecipientID, rev.Rating, rev.Comment).
		Scan(&rev.CreatedAt, &rev.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
	return scanReview(row)
}

func (r *Repository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews WHERE contract_id = $1 ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	return collectReviews(rows)
}

func (r *Repository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews WHERE recipient_id = $1 ORDER BY created_at DESC
	`, recipientID)
	if err != nil {
		return nil, err
	}
	return collectReviews(rows)
}

// RatingSummary returns the recipient's review count and average rating.
func (r *Repository) RatingSummary(ctx context.Context, recipientID uuid.UUID) (int64, float64, error) {
	var (
		count int64
		avg   *float64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), AVG(rating) FROM reviews WHERE recipient_id = $1
	`, recipientID).Scan(&count, &avg)
	if err != nil {
		return 0, 0, err
	}
	if avg == nil {
		return count, 0, nil
	}
	return count, *avg, nil
}

func (r *Repository) Update(ctx context.Context, rev *models.Review) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reviews SET rating = $2, comment = $3, updated_at = now() WHERE id = $1
	`, rev.ID, rev.Rating, rev.Comment)
	return err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	return err
}

func collectReviews(rows pgx.Rows) ([]*models.Review, error) {
	defer rows.Close()
	var list []*models.Review
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rev)
	}
	return list, rows.Err()
}

func scanReview(row pgx.Row) (*models.Review, error) {
	var rev models.Review
	err := row.Scan(&rev.ID, &rev.ContractID, &rev.ReviewerID, &rev.RecipientID,
		&rev.Rating, &rev.Comment, &rev.CreatedAt, &rev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}
