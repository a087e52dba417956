package finance

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigchain/backend/internal/ledger"
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

type moveFundsRequest struct {
	WalletID    uuid.UUID `json:"wallet_id"`
	AmountCents int64     `json:"amount_cents"`
}

// Deposit handles POST /api/v1/finance/deposits.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req moveFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	entry, err := h.svc.Deposit(r.Context(), DepositParams{
		WalletID:       req.WalletID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, u.ID)
	if err != nil {
		h.writeError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Withdraw handles POST /api/v1/finance/withdrawals.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req moveFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	entry, err := h.svc.Withdraw(r.Context(), WithdrawParams{
		WalletID:       req.WalletID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, u.ID)
	if err != nil {
		h.writeError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries handles GET /api/v1/finance/entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.ListEntries(r.Context(), u.ID)
	if err != nil {
		h.writeError(w, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
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
	case errors.Is(err, ErrInvalidAmount):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrWalletNotOwned), errors.Is(err, ErrForeignIdempotencyKey):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusForbidden)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusConflict)
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
