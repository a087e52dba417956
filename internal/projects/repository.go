package projects

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigchain/backend/internal/models"
)

const projectColumns = `id, client_id, title, description, budget_cents, currency,
	skills, status, created_at, updated_at`

const proposalColumns = `id, project_id, freelancer_id, cover_letter, proposed_budget_cents,
	proposed_duration_days, milestones, status, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p *models.Project) error {
	p.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO projects (id, client_id, title, description, budget_cents, currency, skills, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.ClientID, p.Title, p.Description, p.BudgetCents, p.Currency, p.Skills, p.Status).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// ListOpen returns open projects, newest first. Browsing surface for
// freelancers.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]*models.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2
	`, models.ProjectStatusOpen, limit)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE client_id = $1 ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (r *Repository) Update(ctx context.Context, p *models.Project) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET title = $2, description = $3, budget_cents = $4, skills = $5,
			status = $6, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Title, p.Description, p.BudgetCents, p.Skills, p.Status)
	return err
}

// SetStatusTx conditionally moves a project's status inside a transaction.
func (r *Repository) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE projects SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CreateProposal(ctx context.Context, p *models.Proposal) error {
	p.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO proposals (id, project_id, freelancer_id, cover_letter,
			proposed_budget_cents, proposed_duration_days, milestones, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.ProjectID, p.FreelancerID, p.CoverLetter,
		p.ProposedBudgetCents, p.ProposedDurationDays, p.Milestones, p.Status).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) GetProposalByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
	return scanProposal(row)
}

func (r *Repository) ListProposals(ctx context.Context, projectID uuid.UUID) ([]*models.Proposal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE project_id = $1 ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// HasProposal reports whether the freelancer already proposed on the project.
func (r *Repository) HasProposal(ctx context.Context, projectID, freelancerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM proposals WHERE project_id = $1 AND freelancer_id = $2)
	`, projectID, freelancerID).Scan(&exists)
	return exists, err
}

// SetProposalStatusTx conditionally flips a proposal's status inside a
// transaction. Acceptance races resolve to one winner here.
func (r *Repository) SetProposalStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE proposals SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RejectSiblingsTx marks every other pending proposal on the project
// rejected. Runs in the acceptance transaction.
func (r *Repository) RejectSiblingsTx(ctx context.Context, tx pgx.Tx, projectID, acceptedID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE proposals SET status = $3, updated_at = now()
		WHERE project_id = $1 AND id <> $2 AND status = $4
	`, projectID, acceptedID, models.ProposalStatusRejected, models.ProposalStatusPending)
	return err
}

func (r *Repository) SetProposalStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE proposals SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func collectProjects(rows pgx.Rows) ([]*models.Project, error) {
	defer rows.Close()
	var list []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.ClientID, &p.Title, &p.Description, &p.BudgetCents,
		&p.Currency, &p.Skills, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(&p.ID, &p.ProjectID, &p.FreelancerID, &p.CoverLetter,
		&p.ProposedBudgetCents, &p.ProposedDurationDays, &p.Milestones,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
