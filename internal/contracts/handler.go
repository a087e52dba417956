package contracts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigchain/backend/internal/middleware"
	"github.com/gigchain/backend/internal/models"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type createContractRequest struct {
	ProjectID    uuid.UUID  `json:"project_id"`
	FreelancerID uuid.UUID  `json:"freelancer_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Terms        string     `json:"terms"`
	BudgetCents  int64      `json:"budget_cents"`
	Currency     string     `json:"currency"`
	EndDate      *time.Time `json:"end_date"`
}

// Create handles POST /api/v1/contracts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req createContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	c, err := h.svc.CreateDraft(r.Context(), CreateParams{
		ProjectID:    req.ProjectID,
		FreelancerID: req.FreelancerID,
		Title:        req.Title,
		Description:  req.Description,
		Terms:        req.Terms,
		BudgetCents:  req.BudgetCents,
		Currency:     req.Currency,
		EndDate:      req.EndDate,
	}, u.ID)
	if err != nil {
		h.writeError(w, "create contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /api/v1/contracts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListMine(r.Context(), u.ID)
	if err != nil {
		h.writeError(w, "list contracts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/contracts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id, u.ID)
	if err != nil {
		h.writeError(w, "get contract", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type updateContractRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Terms       *string    `json:"terms"`
	BudgetCents *int64     `json:"budget_cents"`
	EndDate     *time.Time `json:"end_date"`
	Status      *string    `json:"status"`
}

// Update handles PUT /api/v1/contracts/{id}. A status field moves the
// lifecycle; other fields edit the draft terms.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	var (
		c   *models.Contract
		err error
	)
	if req.Status != nil {
		c, err = h.svc.UpdateStatus(r.Context(), id, u.ID, *req.Status)
	} else {
		c, err = h.svc.Update(r.Context(), id, u.ID, UpdateParams{
			Title:       req.Title,
			Description: req.Description,
			Terms:       req.Terms,
			BudgetCents: req.BudgetCents,
			EndDate:     req.EndDate,
		})
	}
	if err != nil {
		h.writeError(w, "update contract", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/v1/contracts/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id, u.ID); err != nil {
		h.writeError(w, "delete contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type milestoneRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	DueDate     *time.Time `json:"due_date"`
}

// AddMilestone handles POST /api/v1/contracts/{id}/milestones.
func (h *Handler) AddMilestone(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req milestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	m, err := h.svc.AddMilestone(r.Context(), contractID, u.ID, MilestoneParams{
		Title:       req.Title,
		Description: req.Description,
		AmountCents: req.AmountCents,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.writeError(w, "add milestone", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMilestones handles GET /api/v1/contracts/{id}/milestones.
func (h *Handler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListMilestones(r.Context(), contractID, u.ID)
	if err != nil {
		h.writeError(w, "list milestones", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type updateMilestoneRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	AmountCents *int64     `json:"amount_cents"`
	DueDate     *time.Time `json:"due_date"`
	Status      *string    `json:"status"`
}

// UpdateMilestone handles PUT /api/v1/milestones/{id}.
func (h *Handler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	var (
		m   *models.Milestone
		err error
	)
	if req.Status != nil {
		m, err = h.svc.UpdateMilestoneStatus(r.Context(), id, u.ID, *req.Status)
	} else {
		m, err = h.svc.UpdateMilestone(r.Context(), id, u.ID, MilestoneUpdateParams{
			Title:       req.Title,
			Description: req.Description,
			AmountCents: req.AmountCents,
			DueDate:     req.DueDate,
		})
	}
	if err != nil {
		h.writeError(w, "update milestone", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMilestone handles DELETE /api/v1/milestones/{id}.
func (h *Handler) DeleteMilestone(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteMilestone(r.Context(), id, u.ID); err != nil {
		h.writeError(w, "delete milestone", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	return u, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusForbidden)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotEditable):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	default:
		h.log.Error(op, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
