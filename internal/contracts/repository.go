package contracts

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

const contractColumns = `id, project_id, proposal_id, client_id, freelancer_id, title,
	description, terms, budget_cents, currency, status, start_date, end_date,
	created_at, updated_at`

const milestoneColumns = `id, contract_id, title, description, amount_cents, status,
	due_date, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, c *models.Contract) error {
	return r.CreateTx(ctx, r.pool, c)
}

// CreateTx inserts the contract using any pgx querier so proposal acceptance
// can create the contract in the same transaction that flips the proposal.
func (r *Repository) CreateTx(ctx context.Context, q querier, c *models.Contract) error {
	c.ID = uuid.New()
	return q.QueryRow(ctx, `
		INSERT INTO contracts (id, project_id, proposal_id, client_id, freelancer_id,
			title, description, terms, budget_cents, currency, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, c.ID, c.ProjectID, c.ProposalID, c.ClientID, c.FreelancerID,
		c.Title, c.Description, c.Terms, c.BudgetCents, c.Currency, c.Status,
		c.StartDate, c.EndDate).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	return scanContract(row)
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE client_id = $1 OR freelancer_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// UpdateStatus conditionally moves the contract out of the expected status.
// Returns false when another request changed the row first.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contracts SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) Update(ctx context.Context, c *models.Contract) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contracts
		SET title = $2, description = $3, terms = $4, budget_cents = $5,
			end_date = $6, updated_at = now()
		WHERE id = $1
	`, c.ID, c.Title, c.Description, c.Terms, c.BudgetCents, c.EndDate)
	return err
}

// Delete removes a draft contract and its milestones. Non-draft rows are
// never deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM contracts WHERE id = $1 AND status = $2
	`, id, models.ContractStatusDraft)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CreateMilestone(ctx context.Context, m *models.Milestone) error {
	return r.CreateMilestoneTx(ctx, r.pool, m)
}

func (r *Repository) CreateMilestoneTx(ctx context.Context, q querier, m *models.Milestone) error {
	m.ID = uuid.New()
	return q.QueryRow(ctx, `
		INSERT INTO milestones (id, contract_id, title, description, amount_cents, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, m.ID, m.ContractID, m.Title, m.Description, m.AmountCents, m.Status, m.DueDate).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *Repository) GetMilestoneByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id)
	return scanMilestone(row)
}

func (r *Repository) ListMilestones(ctx context.Context, contractID uuid.UUID) ([]*models.Milestone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+milestoneColumns+` FROM milestones
		WHERE contract_id = $1 ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *Repository) UpdateMilestone(ctx context.Context, m *models.Milestone) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE milestones
		SET title = $2, description = $3, amount_cents = $4, due_date = $5, updated_at = now()
		WHERE id = $1
	`, m.ID, m.Title, m.Description, m.AmountCents, m.DueDate)
	return err
}

// UpdateMilestoneStatus conditionally moves a milestone out of the expected
// status.
func (r *Repository) UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE milestones SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaidTx settles a milestone as part of an escrow release transaction.
// Only an approved milestone can be paid; the condition backstops the
// engine's own check inside the release transaction.
func (r *Repository) MarkPaidTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE milestones SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, models.MilestoneStatusPaid, models.MilestoneStatusApproved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repository) DeleteMilestone(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM milestones WHERE id = $1 AND status = $2
	`, id, models.MilestoneStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(&c.ID, &c.ProjectID, &c.ProposalID, &c.ClientID, &c.FreelancerID,
		&c.Title, &c.Description, &c.Terms, &c.BudgetCents, &c.Currency, &c.Status,
		&c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMilestone(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(&m.ID, &m.ContractID, &m.Title, &m.Description, &m.AmountCents,
		&m.Status, &m.DueDate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
