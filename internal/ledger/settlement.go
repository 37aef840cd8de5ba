package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

// SettleOrder credits the seller of a paid order with the order total less
// platform commission. It is safe to call any number of times: once the
// order carries settlement_credited the entry written the first time is
// returned and nothing changes. A nil entry with a nil error means the order
// settled for zero.
func (s *Service) SettleOrder(ctx context.Context, orderID string) (entry *Entry, err error) {
	ctx, span := startSpan(ctx, "ledger.SettleOrder", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if s.locker != nil {
		unlock, err := s.locker.LockOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("settle order %s: %w", orderID, err)
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
				s.log.Warn("release settlement lock", zap.String("order_id", orderID), zap.Error(uerr))
			}
		}()
	}

	var (
		ev      *Event
		already bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SettlementCredited {
			already = true
			entry, err = tx.EntryForOrder(ctx, orderID)
			if errors.Is(err, ErrEntryNotFound) {
				entry, err = nil, nil
			}
			return err
		}
		if order.PaymentStatus != PaymentPaid {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotPaid, orderID, order.PaymentStatus)
		}

		pct, err := s.commissionPercent(ctx, tx)
		if err != nil {
			return err
		}

		gross := money.Round(order.Total)
		commission := money.Percent(gross, pct)
		net := money.Round(gross.Sub(commission))
		if net.IsNegative() {
			net = decimal.Zero
		}

		if !net.IsPositive() {
			return tx.MarkOrderSettled(ctx, orderID, decimal.Zero)
		}

		w, err := tx.GetOrCreateWallet(ctx, order.SellerID)
		if err != nil {
			return err
		}
		if w, err = tx.LockWallet(ctx, w.ID); err != nil {
			return err
		}

		ref := order.ID
		e := &Entry{
			Direction:   DirectionCredit,
			Source:      SourceOrderSettlement,
			Amount:      net,
			OrderRef:    &ref,
			Description: fmt.Sprintf("Settlement credited for order #%s", order.ID),
			Metadata: map[string]any{
				"gross_order_total":     money.Format(gross),
				"commission_percent":    pct.String(),
				"commission_amount":     money.Format(commission),
				"net_settlement_amount": money.Format(net),
			},
		}
		if err := s.appendEntry(ctx, tx, w, e); err != nil {
			return err
		}
		if err := tx.MarkOrderSettled(ctx, orderID, net); err != nil {
			return err
		}

		entry = e
		ev = &Event{
			Type:     EventSettlementCredited,
			OwnerID:  w.OwnerID,
			WalletID: w.ID,
			Amount:   net,
			Balance:  w.Balance,
			OrderID:  order.ID,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settle order %s: %w", orderID, err)
	}

	if already {
		s.log.Debug("order already settled", zap.String("order_id", orderID))
		return entry, nil
	}
	if ev != nil {
		s.log.Info("settlement credited",
			zap.String("order_id", orderID),
			zap.String("wallet_id", ev.WalletID.String()),
			zap.String("amount", money.Format(ev.Amount)))
		s.publish(ctx, *ev)
	}
	return entry, nil
}

func (s *Service) commissionPercent(ctx context.Context, tx Tx) (decimal.Decimal, error) {
	pct, ok, err := tx.CommissionPercent(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		pct = s.defaultCommission
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidCommission, pct)
	}
	return pct, nil
}
