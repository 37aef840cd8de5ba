package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

type Settler interface {
	SettleOrder(ctx context.Context, orderID string) (*ledger.Entry, error)
}

// Recipients resolves a user id to an email address; "" means none on file.
type Recipients interface {
	Email(ctx context.Context, userID string) (string, error)
}

type Processor struct {
	settler    Settler
	recipients Recipients
	mailer     Mailer
	adminEmail string
	log        *zap.Logger
}

func NewProcessor(settler Settler, recipients Recipients, mailer Mailer, adminEmail string, log *zap.Logger) *Processor {
	return &Processor{settler: settler, recipients: recipients, mailer: mailer, adminEmail: adminEmail, log: log}
}

func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSettleOrder, p.handleSettleOrder)
	mux.HandleFunc(TaskWalletEmail, p.handleWalletEmail)
	mux.HandleFunc(TaskAdminAlert, p.handleAdminAlert)
	return mux
}

// NewServer builds the worker server. Settlement gets the largest share of
// the workers.
func NewServer(opt asynq.RedisConnOpt, concurrency int, log *zap.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueSettlement: 6,
			QueueEmails:     3,
			QueueAlerts:     1,
		},
		Logger: log.Sugar(),
	})
}

func (p *Processor) handleSettleOrder(ctx context.Context, t *asynq.Task) error {
	var pl SettleOrderPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	entry, err := p.settler.SettleOrder(ctx, pl.OrderID)
	switch {
	case err == nil:
	case ledger.IsRetryable(err):
		p.log.Warn("settlement busy, will retry", zap.String("order_id", pl.OrderID), zap.Error(err))
		return err
	case ledger.IsValidation(err), ledger.IsNotFound(err):
		p.log.Warn("settlement skipped", zap.String("order_id", pl.OrderID), zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case ledger.IsInvariant(err):
		p.log.Error("settlement invariant violated", zap.String("order_id", pl.OrderID), zap.Error(err))
		p.alertAdmin(ctx, fmt.Sprintf("Settlement of order %s failed: %v", pl.OrderID, err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}

	if entry != nil {
		p.log.Info("order settled by worker",
			zap.String("order_id", pl.OrderID), zap.String("amount", money.Format(entry.Amount)))
	}
	return nil
}

func (p *Processor) handleWalletEmail(ctx context.Context, t *asynq.Task) error {
	var pl WalletEmailPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	to, err := p.recipients.Email(ctx, pl.Event.OwnerID)
	if err != nil {
		return err
	}
	if to == "" {
		p.log.Debug("no email on file", zap.String("owner_id", pl.Event.OwnerID))
		return nil
	}
	env := RenderWalletEmail(pl.Event)
	if err := p.mailer.Send(ctx, to, env.Subject, env.Body); err != nil {
		p.log.Error("wallet email send failed", zap.String("event", string(pl.Event.Type)), zap.Error(err))
		return err
	}
	p.log.Info("wallet email sent", zap.String("event", string(pl.Event.Type)), zap.String("owner_id", pl.Event.OwnerID))
	return nil
}

func (p *Processor) handleAdminAlert(ctx context.Context, t *asynq.Task) error {
	var pl AdminAlertPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.adminEmail == "" {
		p.log.Warn("admin alert", zap.String("severity", pl.Severity), zap.String("message", pl.Message))
		return nil
	}
	return p.mailer.Send(ctx, p.adminEmail, "[ledger] "+pl.Severity+" alert", pl.Message)
}

func (p *Processor) alertAdmin(ctx context.Context, msg string) {
	if p.adminEmail == "" {
		return
	}
	if err := p.mailer.Send(ctx, p.adminEmail, "[ledger] critical alert", msg); err != nil {
		p.log.Error("admin alert failed", zap.Error(err))
	}
}

// RenderWalletEmail builds the message a seller receives for a wallet event.
func RenderWalletEmail(ev ledger.Event) EmailEnvelope {
	amount := money.Format(ev.Amount)
	switch ev.Type {
	case ledger.EventSettlementCredited:
		return EmailEnvelope{
			Subject: "Payment credited to your wallet",
			Body: fmt.Sprintf("Order %s has been settled. %s was credited to your wallet.\n\nWallet balance: %s",
				ev.OrderID, amount, money.Format(ev.Balance)),
		}
	case ledger.EventWithdrawalRequested:
		return EmailEnvelope{
			Subject: "Withdrawal request received",
			Body:    fmt.Sprintf("We received your request to withdraw %s. It will be reviewed by our team.", amount),
		}
	case ledger.EventWithdrawalApproved:
		return EmailEnvelope{
			Subject: "Withdrawal approved",
			Body: fmt.Sprintf("Your withdrawal of %s was approved and will be paid to your account on file.\n\nWallet balance: %s",
				amount, money.Format(ev.Balance)),
		}
	case ledger.EventWithdrawalRejected:
		body := fmt.Sprintf("Your withdrawal of %s was not approved. Your wallet balance is unchanged.", amount)
		if ev.Note != "" {
			body += "\n\nNote from our team: " + ev.Note
		}
		return EmailEnvelope{Subject: "Withdrawal rejected", Body: body}
	}
	return EmailEnvelope{Subject: "Wallet update", Body: fmt.Sprintf("Your wallet changed by %s.", amount)}
}

// PGRecipients reads addresses from the identity service's users table.
type PGRecipients struct {
	Pool *pgxpool.Pool
}

func (r PGRecipients) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.Pool.QueryRow(ctx, `SELECT email FROM users WHERE id::text = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup email: %w", err)
	}
	return email, nil
}
