package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

// TaskEnqueuer is the part of *asynq.Client the producers use.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Enqueuer struct {
	client TaskEnqueuer
}

func NewEnqueuer(client TaskEnqueuer) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) enqueue(ctx context.Context, typ string, payload any, opts ...asynq.Option) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if _, err := e.client.EnqueueContext(ctx, asynq.NewTask(typ, b), opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return nil
}

// EnqueueSettlement asks the worker to settle a delivered order. Duplicate
// triggers are harmless: settlement credits an order at most once.
func (e *Enqueuer) EnqueueSettlement(ctx context.Context, orderID string) error {
	return e.enqueue(ctx, TaskSettleOrder, SettleOrderPayload{OrderID: orderID},
		asynq.Queue(QueueSettlement),
		asynq.MaxRetry(10),
	)
}

// Notify implements ledger.Notifier by queueing an email for the wallet owner.
func (e *Enqueuer) Notify(ctx context.Context, ev ledger.Event) error {
	return e.enqueue(ctx, TaskWalletEmail, WalletEmailPayload{Event: ev}, asynq.Queue(QueueEmails))
}

// EnqueueAdminAlert sends an alert to the configured admin address.
func (e *Enqueuer) EnqueueAdminAlert(ctx context.Context, severity, message string) error {
	payload := AdminAlertPayload{Severity: severity, Message: message, SentAt: time.Now().UTC()}
	return e.enqueue(ctx, TaskAdminAlert, payload, asynq.Queue(QueueAlerts))
}
