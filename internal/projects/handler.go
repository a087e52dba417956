package projects

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

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

type createProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	BudgetCents int64    `json:"budget_cents"`
	Currency    string   `json:"currency"`
	Skills      []string `json:"skills"`
}

// Create handles POST /api/v1/projects.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.Create(r.Context(), CreateProjectParams{
		Title:       req.Title,
		Description: req.Description,
		BudgetCents: req.BudgetCents,
		Currency:    req.Currency,
		Skills:      req.Skills,
	}, u.ID)
	if err != nil {
		h.writeError(w, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /api/v1/projects. ?mine=true returns the caller's own
// projects regardless of status; otherwise open projects for browsing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var (
		list []*models.Project
		err  error
	)
	if r.URL.Query().Get("mine") == "true" {
		list, err = h.svc.ListByClient(r.Context(), u.ID)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err = h.svc.ListOpen(r.Context(), limit)
	}
	if err != nil {
		h.writeError(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/projects/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProjectRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	BudgetCents *int64   `json:"budget_cents"`
	Skills      []string `json:"skills"`
	Status      *string  `json:"status"`
}

// Update handles PUT /api/v1/projects/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.Update(r.Context(), id, u.ID, UpdateProjectParams{
		Title:       req.Title,
		Description: req.Description,
		BudgetCents: req.BudgetCents,
		Skills:      req.Skills,
		Status:      req.Status,
	})
	if err != nil {
		h.writeError(w, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type proposalRequest struct {
	CoverLetter          string          `json:"cover_letter"`
	ProposedBudgetCents  int64           `json:"proposed_budget_cents"`
	ProposedDurationDays *int            `json:"proposed_duration_days"`
	Milestones           json.RawMessage `json:"milestones"`
}

// Propose handles POST /api/v1/projects/{id}/proposals.
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req proposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.Propose(r.Context(), ProposalParams{
		ProjectID:            projectID,
		CoverLetter:          req.CoverLetter,
		ProposedBudgetCents:  req.ProposedBudgetCents,
		ProposedDurationDays: req.ProposedDurationDays,
		Milestones:           req.Milestones,
	}, u.ID)
	if err != nil {
		h.writeError(w, "submit proposal", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListProposals handles GET /api/v1/projects/{id}/proposals.
func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListProposals(r.Context(), projectID, u.ID)
	if err != nil {
		h.writeError(w, "list proposals", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type decideProposalRequest struct {
	Action string `json:"action"`
}

// Decide handles POST /api/v1/proposals/{id}/decision with action accept,
// reject or withdraw. Accepting returns the created contract.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req decideProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	switch req.Action {
	case "accept":
		c, err := h.svc.Accept(r.Context(), proposalID, u.ID)
		if err != nil {
			h.writeError(w, "accept proposal", err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	case "reject":
		p, err := h.svc.Reject(r.Context(), proposalID, u.ID)
		if err != nil {
			h.writeError(w, "reject proposal", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case "withdraw":
		p, err := h.svc.Withdraw(r.Context(), proposalID, u.ID)
		if err != nil {
			h.writeError(w, "withdraw proposal", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		http.Error(w, `{"error":"action must be accept, reject or withdraw"}`, http.StatusBadRequest)
	}
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	return u, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
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
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrOwnProject):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusForbidden)
	case errors.Is(err, ErrNotOpen), errors.Is(err, ErrAlreadyProposed), errors.Is(err, ErrNotPending):
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
