package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

type CreateWithdrawalReq struct {
	Amount decimal.Decimal `json:"amount"`
}

type ReviewReq struct {
	AdminNote string `json:"admin_note" validate:"max=1000"`
}

type listQuery struct {
	Limit   int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Offset  int    `query:"offset" validate:"min=0"`
	OwnerID string `query:"owner_id"`
	Status  string `query:"status" validate:"omitempty,oneof=pending approved rejected PENDING APPROVED REJECTED"`
}

type walletView struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entryView struct {
	ID            string         `json:"id"`
	WalletID      string         `json:"wallet_id"`
	Direction     string         `json:"direction"`
	Source        string         `json:"source"`
	Amount        string         `json:"amount"`
	BalanceAfter  string         `json:"balance_after"`
	OrderRef      *string        `json:"order_ref"`
	WithdrawalRef *string        `json:"withdrawal_ref"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
}

type withdrawalView struct {
	ID         string                   `json:"id"`
	SellerID   string                   `json:"seller_id"`
	WalletID   string                   `json:"wallet_id"`
	Amount     string                   `json:"amount"`
	Status     string                   `json:"status"`
	Payout     ledger.PayoutDestination `json:"payout_destination"`
	AdminNote  string                   `json:"admin_note"`
	ReviewedBy *string                  `json:"reviewed_by"`
	ReviewedAt *time.Time               `json:"reviewed_at"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

type verificationView struct {
	WalletID    string `json:"wallet_id"`
	Entries     int    `json:"entries"`
	Replayed    string `json:"replayed_balance"`
	Balance     string `json:"wallet_balance"`
	Consistent  bool   `json:"consistent"`
	FirstBadSeq int64  `json:"first_bad_seq,omitempty"`
}

func toWallet(w ledger.Wallet) walletView {
	return walletView{ID: w.ID.String(), OwnerID: w.OwnerID, Balance: money.Format(w.Balance), UpdatedAt: w.UpdatedAt}
}

func toEntry(e ledger.Entry) entryView {
	v := entryView{
		ID:           e.ID.String(),
		WalletID:     e.WalletID.String(),
		Direction:    string(e.Direction),
		Source:       string(e.Source),
		Amount:       money.Format(e.Amount),
		BalanceAfter: money.Format(e.BalanceAfter),
		OrderRef:     e.OrderRef,
		Description:  e.Description,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
	if e.WithdrawalRef != nil {
		s := e.WithdrawalRef.String()
		v.WithdrawalRef = &s
	}
	return v
}

func toEntries(es []ledger.Entry) []entryView {
	out := make([]entryView, 0, len(es))
	for _, e := range es {
		out = append(out, toEntry(e))
	}
	return out
}

func toWithdrawal(w ledger.Withdrawal) withdrawalView {
	return withdrawalView{
		ID:         w.ID.String(),
		SellerID:   w.SellerID,
		WalletID:   w.WalletID.String(),
		Amount:     money.Format(w.Amount),
		Status:     string(w.Status),
		Payout:     w.Payout,
		AdminNote:  w.AdminNote,
		ReviewedBy: w.ReviewedBy,
		ReviewedAt: w.ReviewedAt,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

func toWithdrawals(ws []ledger.Withdrawal) []withdrawalView {
	out := make([]withdrawalView, 0, len(ws))
	for _, w := range ws {
		out = append(out, toWithdrawal(w))
	}
	return out
}

func toVerification(v ledger.Verification) verificationView {
	return verificationView{
		WalletID:    v.WalletID.String(),
		Entries:     v.Entries,
		Replayed:    money.Format(v.Replayed),
		Balance:     money.Format(v.Balance),
		Consistent:  v.Consistent,
		FirstBadSeq: v.FirstBadSeq,
	}
}
