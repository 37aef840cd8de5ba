package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

type Summary struct {
	Wallet Wallet  `json:"wallet"`
	Recent []Entry `json:"recent_transactions"`
}

// WalletSummary returns the owner's wallet, creating it on first access,
// with its most recent entries newest first.
func (s *Service) WalletSummary(ctx context.Context, ownerID string, recent int) (*Summary, error) {
	if recent <= 0 {
		recent = SummaryEntries
	}
	var w *Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		w, err = tx.GetOrCreateWallet(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("wallet summary: %w", err)
	}
	entries, err := s.store.ListEntries(ctx, EntryFilter{WalletID: w.ID, Limit: recent})
	if err != nil {
		return nil, fmt.Errorf("wallet summary: %w", err)
	}
	return &Summary{Wallet: *w, Recent: entries}, nil
}

// ListEntries pages through entries newest first. An empty OwnerID lists
// every wallet.
func (s *Service) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	f.Limit = pageSize(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListEntries(ctx, f)
}

func (s *Service) ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]Withdrawal, error) {
	f.Limit = pageSize(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListWithdrawals(ctx, f)
}

func (s *Service) GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	return s.store.GetWithdrawal(ctx, id)
}

// Verification is the outcome of replaying a wallet's ledger from zero.
type Verification struct {
	WalletID   uuid.UUID       `json:"wallet_id"`
	Entries    int             `json:"entries"`
	Replayed   decimal.Decimal `json:"replayed_balance"`
	Balance    decimal.Decimal `json:"wallet_balance"`
	Consistent bool            `json:"consistent"`
	// FirstBadSeq is the first entry whose balance_after disagrees with the
	// running sum, zero when every entry agrees.
	FirstBadSeq int64 `json:"first_bad_seq,omitempty"`
}

// VerifyWallet replays every entry of a wallet in order under the wallet lock
// and checks each balance_after against the running sum and the final sum
// against the stored balance. An inconsistent ledger is reported both in the
// result and as ErrLedgerMismatch.
func (s *Service) VerifyWallet(ctx context.Context, walletID uuid.UUID) (v *Verification, err error) {
	ctx, span := startSpan(ctx, "ledger.VerifyWallet")
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		entries, err := tx.WalletEntries(ctx, walletID)
		if err != nil {
			return err
		}
		v = Replay(entries)
		v.WalletID = walletID
		v.Balance = w.Balance
		v.Consistent = v.FirstBadSeq == 0 && v.Replayed.Equal(w.Balance)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify wallet %s: %w", walletID, err)
	}
	if !v.Consistent {
		return v, fmt.Errorf("%w: wallet %s replays to %s but holds %s",
			ErrLedgerMismatch, walletID, money.Format(v.Replayed), money.Format(v.Balance))
	}
	return v, nil
}

// Replay sums entries oldest first from zero. Balance and Consistent are left
// for the caller, who knows the stored balance.
func Replay(entries []Entry) *Verification {
	v := &Verification{Entries: len(entries), Replayed: decimal.Zero}
	for _, e := range entries {
		v.Replayed = money.Round(v.Replayed.Add(e.Signed()))
		if v.FirstBadSeq == 0 && !e.BalanceAfter.Equal(v.Replayed) {
			v.FirstBadSeq = e.Seq
		}
	}
	return v
}
