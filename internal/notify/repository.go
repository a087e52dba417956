package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ NotificationWriter = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, userID uuid.UUID, event string, payload json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), userID, event, payload)
	return err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, payload, is_read, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Payload, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

// MarkRead flips the read flag. Scoped to the owner so users cannot touch
// each other's notifications.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
