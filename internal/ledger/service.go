// Package ledger is the seller wallet ledger: order settlement, the
// withdrawal approval workflow and the append-only entry log that backs
// every balance change.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	// SummaryEntries is how many recent entries the wallet summary carries.
	SummaryEntries = 20
)

var tracer = otel.Tracer("github.com/sudo-init-do/crafthub-ledger/internal/ledger")

type Service struct {
	store     Store
	payouts   PayoutDirectory
	locker    OrderLocker
	notifiers []Notifier
	log       *zap.Logger

	defaultCommission decimal.Decimal
	now               func() time.Time
}

type Option func(*Service)

func WithOrderLocker(l OrderLocker) Option { return func(s *Service) { s.locker = l } }

func WithNotifiers(n ...Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithDefaultCommission sets the percent used when the platform setting is absent.
func WithDefaultCommission(pct decimal.Decimal) Option {
	return func(s *Service) { s.defaultCommission = pct }
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store Store, payouts PayoutDirectory, opts ...Option) *Service {
	s := &Service{
		store:   store,
		payouts: payouts,
		log:     zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// appendEntry checks that the log and the locked wallet agree before the
// delta, applies it, and writes the entry carrying the new balance.
func (s *Service) appendEntry(ctx context.Context, tx Tx, w *Wallet, e *Entry) error {
	last, ok, err := tx.LastBalanceAfter(ctx, w.ID)
	if err != nil {
		return err
	}
	if !ok {
		last = decimal.Zero
	}
	if !last.Equal(w.Balance) {
		return fmt.Errorf("%w: wallet %s holds %s, last entry says %s",
			ErrLedgerMismatch, w.ID, money.Format(w.Balance), money.Format(last))
	}

	if err := w.ApplyDelta(e.Signed()); err != nil {
		return err
	}
	if err := tx.SaveWalletBalance(ctx, w); err != nil {
		return err
	}

	e.ID = uuid.New()
	e.WalletID = w.ID
	e.BalanceAfter = w.Balance
	e.CreatedAt = s.now()
	return tx.AppendEntry(ctx, e)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	ev.At = s.now()
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			s.log.Warn("wallet event not delivered",
				zap.String("event", string(ev.Type)),
				zap.String("owner_id", ev.OwnerID),
				zap.Error(err))
		}
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}
