package reviews

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

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

type createReviewRequest struct {
	ContractID uuid.UUID `json:"contract_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
}

// Create handles POST /api/v1/reviews.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	rev, err := h.svc.Create(r.Context(), CreateParams{
		ContractID: req.ContractID,
		Rating:     req.Rating,
		Comment:    req.Comment,
	}, u.ID)
	if err != nil {
		h.writeError(w, "create review", err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

// List handles GET /api/v1/reviews. ?contract_id= lists a contract's reviews
// (parties only); ?user_id= lists reviews received by a user (public).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if raw := q.Get("contract_id"); raw != "" {
		contractID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid contract id"}`, http.StatusBadRequest)
			return
		}
		list, err := h.svc.ListByContract(r.Context(), contractID, u.ID)
		if err != nil {
			h.writeError(w, "list reviews", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}
	if raw := q.Get("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
			return
		}
		list, err := h.svc.ListByRecipient(r.Context(), userID)
		if err != nil {
			h.writeError(w, "list reviews", err)
			return
		}
		count, avg, err := h.svc.RatingSummary(r.Context(), userID)
		if err != nil {
			h.writeError(w, "rating summary", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"reviews":        list,
			"review_count":   count,
			"average_rating": avg,
		})
		return
	}
	http.Error(w, `{"error":"contract_id or user_id is required"}`, http.StatusBadRequest)
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

// Update handles PUT /api/v1/reviews/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid review id"}`, http.StatusBadRequest)
		return
	}
	var req updateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	rev, err := h.svc.Update(r.Context(), id, u.ID, UpdateParams{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.writeError(w, "update review", err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// Delete handles DELETE /api/v1/reviews/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid review id"}`, http.StatusBadRequest)
		return
	}
	if err := h.svc.Delete(r.Context(), id, u.ID); err != nil {
		h.writeError(w, "delete review", err)
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

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidRating):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusForbidden)
	case errors.Is(err, ErrContractNotCompleted), errors.Is(err, ErrAlreadyReviewed), errors.Is(err, ErrWindowClosed):
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
