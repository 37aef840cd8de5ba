package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

// RequestWithdrawal records a PENDING request to move amount out of the
// seller's wallet. The payout destination on file is copied onto the request
// so later edits to it do not change what an admin reviews.
func (s *Service) RequestWithdrawal(ctx context.Context, sellerID string, amount decimal.Decimal) (wd *Withdrawal, err error) {
	ctx, span := startSpan(ctx, "ledger.RequestWithdrawal", attribute.String("seller.id", sellerID))
	defer func() { endSpan(span, err) }()

	// Requests are in whole cents; sub-cent amounts are refused, not rounded.
	if !amount.Equal(money.Round(amount)) || !money.IsPositive(amount) {
		return nil, ErrInvalidAmount
	}

	dest, err := s.payouts.PayoutDestination(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("load payout destination: %w", err)
	}
	if dest == nil || !dest.Complete() {
		return nil, ErrMissingPayoutDestination
	}

	var balance decimal.Decimal
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.GetOrCreateWallet(ctx, sellerID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(w.Balance) {
			return fmt.Errorf("%w: requested %s, available %s",
				ErrInsufficientBalance, money.Format(amount), money.Format(w.Balance))
		}
		now := s.now()
		wd = &Withdrawal{
			ID:        uuid.New(),
			SellerID:  sellerID,
			WalletID:  w.ID,
			Payout:    *dest,
			Amount:    amount,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		balance = w.Balance
		return tx.InsertWithdrawal(ctx, wd)
	})
	if err != nil {
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}

	s.log.Info("withdrawal requested",
		zap.String("withdrawal_id", wd.ID.String()),
		zap.String("seller_id", sellerID),
		zap.String("amount", money.Format(amount)))
	s.publish(ctx, Event{
		Type:         EventWithdrawalRequested,
		OwnerID:      sellerID,
		WalletID:     wd.WalletID,
		Amount:       amount,
		Balance:      balance,
		WithdrawalID: &wd.ID,
	})
	return wd, nil
}

// Approve debits the wallet by the requested amount and closes the request.
// The balance is checked again under the wallet lock since it may have
// dropped since the request was made.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, adminID, note string) (wd *Withdrawal, err error) {
	ctx, span := startSpan(ctx, "ledger.ApproveWithdrawal", attribute.String("withdrawal.id", id.String()))
	defer func() { endSpan(span, err) }()

	var w *Wallet
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if wd, err = tx.LockWithdrawal(ctx, id); err != nil {
			return err
		}
		if wd.Status.Terminal() {
			return fmt.Errorf("%w: request %s is %s", ErrInvalidStateTransition, id, wd.Status)
		}
		if w, err = tx.LockWallet(ctx, wd.WalletID); err != nil {
			return err
		}
		if wd.Amount.GreaterThan(w.Balance) {
			return fmt.Errorf("%w: requested %s, available %s",
				ErrInsufficientBalance, money.Format(wd.Amount), money.Format(w.Balance))
		}

		ref := wd.ID
		e := &Entry{
			Direction:     DirectionDebit,
			Source:        SourceWithdrawal,
			Amount:        wd.Amount,
			WithdrawalRef: &ref,
			Description:   fmt.Sprintf("Withdrawal approved for request #%s", wd.ID),
			Metadata: map[string]any{
				"approved_by":   adminID,
				"payout_method": wd.Payout.Method(),
			},
		}
		if err := s.appendEntry(ctx, tx, w, e); err != nil {
			return err
		}

		review(wd, StatusApproved, adminID, note, s.now())
		return tx.SaveWithdrawalReview(ctx, wd)
	})
	if err != nil {
		return nil, fmt.Errorf("approve withdrawal %s: %w", id, err)
	}

	s.log.Info("withdrawal approved",
		zap.String("withdrawal_id", id.String()),
		zap.String("admin_id", adminID),
		zap.String("balance", money.Format(w.Balance)))
	s.publish(ctx, Event{
		Type:         EventWithdrawalApproved,
		OwnerID:      wd.SellerID,
		WalletID:     w.ID,
		Amount:       wd.Amount,
		Balance:      w.Balance,
		WithdrawalID: &wd.ID,
		Note:         wd.AdminNote,
	})
	return wd, nil
}

// Reject closes a pending request without touching the wallet.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, adminID, note string) (wd *Withdrawal, err error) {
	ctx, span := startSpan(ctx, "ledger.RejectWithdrawal", attribute.String("withdrawal.id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if wd, err = tx.LockWithdrawal(ctx, id); err != nil {
			return err
		}
		if wd.Status.Terminal() {
			return fmt.Errorf("%w: request %s is %s", ErrInvalidStateTransition, id, wd.Status)
		}
		review(wd, StatusRejected, adminID, note, s.now())
		return tx.SaveWithdrawalReview(ctx, wd)
	})
	if err != nil {
		return nil, fmt.Errorf("reject withdrawal %s: %w", id, err)
	}

	s.log.Info("withdrawal rejected", zap.String("withdrawal_id", id.String()), zap.String("admin_id", adminID))
	s.publish(ctx, Event{
		Type:         EventWithdrawalRejected,
		OwnerID:      wd.SellerID,
		WalletID:     wd.WalletID,
		Amount:       wd.Amount,
		WithdrawalID: &wd.ID,
		Note:         wd.AdminNote,
	})
	return wd, nil
}

func review(wd *Withdrawal, status WithdrawalStatus, adminID, note string, at time.Time) {
	wd.Status = status
	wd.AdminNote = strings.TrimSpace(note)
	wd.ReviewedBy = &adminID
	wd.ReviewedAt = &at
	wd.UpdatedAt = at
}
