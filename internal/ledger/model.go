package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

type Source string

const (
	SourceOrderSettlement Source = "ORDER_SETTLEMENT"
	SourceWithdrawal      Source = "WITHDRAWAL"
)

type WithdrawalStatus string

const (
	StatusPending  WithdrawalStatus = "PENDING"
	StatusApproved WithdrawalStatus = "APPROVED"
	StatusRejected WithdrawalStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s WithdrawalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseWithdrawalStatus accepts either case ("pending", "PENDING").
func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	switch st := WithdrawalStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown withdrawal status %q", s)
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Wallet is a seller's running balance. One per owner.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ApplyDelta adds a signed amount to the balance. The wallet is left
// untouched when the result would be negative.
func (w *Wallet) ApplyDelta(delta decimal.Decimal) error {
	next := money.Round(w.Balance.Add(delta))
	if next.IsNegative() {
		return fmt.Errorf("%w: wallet %s balance %s delta %s",
			ErrNegativeBalance, w.ID, money.Format(w.Balance), money.Format(delta))
	}
	w.Balance = next
	return nil
}

// Entry is one immutable line of a wallet's ledger.
type Entry struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"seq"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	Direction     Direction       `json:"direction"`
	Source        Source          `json:"source"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	OrderRef      *string         `json:"order_ref,omitempty"`
	WithdrawalRef *uuid.UUID      `json:"withdrawal_ref,omitempty"`
	Description   string          `json:"description"`
	Metadata      map[string]any  `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the amount as it affects the balance.
func (e Entry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// PayoutDestination is the bank or UPI target a seller keeps on file.
type PayoutDestination struct {
	HolderName    string `json:"account_holder_name"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc_code"`
	UPIID         string `json:"upi_id"`
}

// HasBankAccount reports whether all three bank fields are present.
func (d PayoutDestination) HasBankAccount() bool {
	return strings.TrimSpace(d.HolderName) != "" &&
		strings.TrimSpace(d.AccountNumber) != "" &&
		strings.TrimSpace(d.IFSC) != ""
}

// Complete reports whether at least one usable payout form is on file.
func (d PayoutDestination) Complete() bool {
	return d.HasBankAccount() || strings.TrimSpace(d.UPIID) != ""
}

// Method names the form an approved withdrawal would be paid through.
func (d PayoutDestination) Method() string {
	if d.HasBankAccount() {
		return "bank"
	}
	return "upi"
}

// Withdrawal is a seller's request to move funds out of the wallet.
type Withdrawal struct {
	ID         uuid.UUID         `json:"id"`
	SellerID   string            `json:"seller_id"`
	WalletID   uuid.UUID         `json:"wallet_id"`
	Payout     PayoutDestination `json:"payout"`
	Amount     decimal.Decimal   `json:"amount"`
	Status     WithdrawalStatus  `json:"status"`
	AdminNote  string            `json:"admin_note"`
	ReviewedBy *string           `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Order is the slice of an externally owned order the settlement reads and
// writes back.
type Order struct {
	ID                 string
	SellerID           string
	Total              decimal.Decimal
	Currency           string
	PaymentStatus      PaymentStatus
	SettlementCredited bool
	SettlementAmount   decimal.Decimal
}
