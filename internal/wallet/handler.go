package wallet

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigchain/backend/internal/ledger"
	"github.com/gigchain/backend/internal/middleware"
	"github.com/gigchain/backend/internal/models"
)

// Store is the wallet persistence the handler needs. Satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, w *models.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Wallet, error)
	Update(ctx context.Context, w *models.Wallet) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	repo   Store
	ledger ledger.Store
	log    *slog.Logger
}

func NewHandler(repo Store, ledgerStore ledger.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, ledger: ledgerStore, log: log}
}

type createWalletRequest struct {
	Currency  string `json:"currency"`
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default"`
}

// Create handles POST /api/v1/wallets.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		http.Error(w, `{"error":"currency is required"}`, http.StatusBadRequest)
		return
	}
	wal := &models.Wallet{
		UserID:    u.ID,
		Currency:  req.Currency,
		Label:     req.Label,
		IsDefault: req.IsDefault,
	}
	if err := h.repo.Create(r.Context(), wal); err != nil {
		h.log.Error("create wallet", "error", err)
		http.Error(w, `{"error":"failed to create wallet"}`, http.StatusInternalServerError)
		return
	}
	if req.IsDefault {
		// Demote any previous default.
		if err := h.repo.Update(r.Context(), wal); err != nil {
			h.log.Error("set default wallet", "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, wal)
}

// List handles GET /api/v1/wallets.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	wallets, err := h.repo.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.log.Error("list wallets", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

// Get handles GET /api/v1/wallets/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	wal, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

type updateWalletRequest struct {
	Label     *string `json:"label"`
	IsDefault *bool   `json:"is_default"`
}

// Update handles PUT /api/v1/wallets/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	wal, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	var req updateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Label != nil {
		wal.Label = *req.Label
	}
	if req.IsDefault != nil {
		wal.IsDefault = *req.IsDefault
	}
	if err := h.repo.Update(r.Context(), wal); err != nil {
		h.log.Error("update wallet", "error", err)
		http.Error(w, `{"error":"update failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// Deactivate handles DELETE /api/v1/wallets/{id}. Soft-delete: the wallet
// drops out of listings and payout routing but its ledger history stays.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	wal, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	if err := h.repo.Deactivate(r.Context(), wal.ID); err != nil {
		h.log.Error("deactivate wallet", "error", err)
		http.Error(w, `{"error":"deactivate failed"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /api/v1/wallets/{id}/entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	wal, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.ListByWallet(r.Context(), wal.ID)
	if err != nil {
		h.log.Error("list ledger entries", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ownedWallet loads the wallet from the path and verifies the caller owns it.
func (h *Handler) ownedWallet(w http.ResponseWriter, r *http.Request) (*models.Wallet, bool) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid wallet id"}`, http.StatusBadRequest)
		return nil, false
	}
	wal, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"wallet not found"}`, http.StatusNotFound)
		return nil, false
	}
	if wal.UserID != u.ID {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return nil, false
	}
	return wal, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
