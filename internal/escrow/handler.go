package escrow

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
	svc     *Service
	wallets WalletStore
	log     *slog.Logger
}

func NewHandler(svc *Service, wallets WalletStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, wallets: wallets, log: log}
}

type fundRequest struct {
	WalletID    uuid.UUID  `json:"wallet_id"`
	ContractID  uuid.UUID  `json:"contract_id"`
	MilestoneID *uuid.UUID `json:"milestone_id"`
	AmountCents int64      `json:"amount_cents"`
}

type fundResponse struct {
	Escrow *models.EscrowTransaction `json:"escrow"`
	Wallet walletSnapshot            `json:"wallet"`
}

type walletSnapshot struct {
	ID           uuid.UUID `json:"id"`
	BalanceCents int64     `json:"balance_cents"`
}

// Fund handles POST /api/v1/finance/escrow. An Idempotency-Key header makes
// retries safe: the same key always returns the first attempt's escrow.
func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	esc, err := h.svc.Fund(r.Context(), FundParams{
		WalletID:       req.WalletID,
		ContractID:     req.ContractID,
		MilestoneID:    req.MilestoneID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, u.ID)
	if err != nil {
		h.writeError(w, "fund escrow", err)
		return
	}

	snap := walletSnapshot{ID: req.WalletID}
	if wal, err := h.wallets.GetByID(r.Context(), req.WalletID); err == nil {
		snap.BalanceCents = wal.BalanceCents
	}
	writeJSON(w, http.StatusCreated, fundResponse{Escrow: esc, Wallet: snap})
}

type actionRequest struct {
	EscrowID uuid.UUID `json:"escrow_id"`
	Action   string    `json:"action"`
}

// Act handles PATCH /api/v1/finance/escrow with action release, refund or
// dispute.
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	var (
		esc *models.EscrowTransaction
		err error
	)
	switch req.Action {
	case "release":
		esc, err = h.svc.Release(r.Context(), req.EscrowID, u.ID)
	case "refund":
		esc, err = h.svc.Refund(r.Context(), req.EscrowID, u.ID)
	case "dispute":
		esc, err = h.svc.Dispute(r.Context(), req.EscrowID, u.ID)
	default:
		http.Error(w, `{"error":"action must be release, refund or dispute"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, "escrow "+req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// Get handles GET /api/v1/finance/escrow/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid escrow id"}`, http.StatusBadRequest)
		return
	}
	esc, err := h.svc.Get(r.Context(), id, u.ID)
	if err != nil {
		h.writeError(w, "get escrow", err)
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// ListByContract handles GET /api/v1/contracts/{id}/escrows.
func (h *Handler) ListByContract(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid contract id"}`, http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListByContract(r.Context(), id, u.ID)
	if err != nil {
		h.writeError(w, "list escrows", err)
		return
	}
	if list == nil {
		list = []*models.EscrowTransaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidMilestone), errors.Is(err, ErrInvalidState):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusBadRequest)
	case errors.Is(err, ErrWalletNotOwned), errors.Is(err, ErrForbidden):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusForbidden)
	case errors.Is(err, ErrNoPayoutWallet):
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
