package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// PayoutArgs is the job payload for pushing a withdrawal to the payout
// provider. EntryID is the processing ledger entry the payout settles.
type PayoutArgs struct {
	EntryID     uuid.UUID `json:"entry_id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	FeeCents    int64     `json:"fee_cents"`
	Currency    string    `json:"currency"`
}

func (PayoutArgs) Kind() string { return "withdrawal_payout" }

// EnqueueTxFunc enqueues a payout job within the given transaction, so the
// withdrawal debit and the job commit together. Provided by main using
// river.Client.InsertTx.
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, args PayoutArgs) error

// Settler finalizes a withdrawal after the provider answers. Satisfied by
// the finance service.
type Settler interface {
	MarkWithdrawalCompleted(ctx context.Context, entryID uuid.UUID) error
	MarkWithdrawalFailed(ctx context.Context, entryID uuid.UUID) error
}

// Worker pushes withdrawals to an external payout provider. An empty
// provider URL settles immediately, which is the development setup.
type Worker struct {
	river.WorkerDefaults[PayoutArgs]
	settler     Settler
	providerURL string
	client      *http.Client
	log         *slog.Logger
}

func NewWorker(settler Settler, providerURL string, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		settler:     settler,
		providerURL: providerURL,
		client:      &http.Client{Timeout: 60 * time.Second},
		log:         log,
	}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[PayoutArgs]) error {
	args := job.Args

	if w.providerURL == "" {
		w.log.Info("payout provider not configured, settling immediately",
			"entry_id", args.EntryID, "amount_cents", args.AmountCents)
		return w.settler.MarkWithdrawalCompleted(ctx, args.EntryID)
	}

	body, err := json.Marshal(map[string]any{
		"reference":    args.EntryID,
		"amount_cents": args.AmountCents,
		"currency":     args.Currency,
		"wallet_id":    args.WalletID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.providerURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		// Network failure: let river retry the job.
		return fmt.Errorf("payout provider request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return w.settler.MarkWithdrawalCompleted(ctx, args.EntryID)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Provider rejected the payout. Fail the withdrawal and refund;
		// retrying the same request would be rejected again.
		w.log.Warn("payout rejected by provider",
			"entry_id", args.EntryID, "status", resp.StatusCode)
		return w.settler.MarkWithdrawalFailed(ctx, args.EntryID)
	default:
		return fmt.Errorf("payout provider returned %d", resp.StatusCode)
	}
}
