package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// UserNotificationArgs is the payload for the notification fan-out job.
// Events are enqueued with InsertTx inside the same transaction as the state
// change they announce, so a committed change always produces its
// notification and a rolled-back one never does.
type UserNotificationArgs struct {
	UserID  uuid.UUID       `json:"user_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (UserNotificationArgs) Kind() string { return "user_notification" }

// EnqueueTxFunc enqueues a notification job within the given transaction.
// Provided by main using river.Client.InsertTx.
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, args UserNotificationArgs) error

// EnqueueFunc enqueues a notification job outside any transaction, for call
// sites whose state change is a single statement. Provided by main using
// river.Client.Insert.
type EnqueueFunc func(ctx context.Context, args UserNotificationArgs) error

// NotificationWriter is the store the worker writes notification rows to.
type NotificationWriter interface {
	Create(ctx context.Context, userID uuid.UUID, event string, payload json.RawMessage) error
}

type UserNotificationWorker struct {
	river.WorkerDefaults[UserNotificationArgs]
	store NotificationWriter
}

func NewUserNotificationWorker(store NotificationWriter) *UserNotificationWorker {
	return &UserNotificationWorker{store: store}
}

func (w *UserNotificationWorker) Work(ctx context.Context, job *river.Job[UserNotificationArgs]) error {
	args := job.Args
	return w.store.Create(ctx, args.UserID, args.Event, args.Payload)
}
