package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence boundary. Every balance mutation runs inside
// WithinTx: fn's error rolls the whole transaction back, a nil return commits.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error)
	ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]Withdrawal, error)
}

// Tx is the set of operations available inside one transaction. Row locks
// taken through Lock* are held until the transaction ends.
type Tx interface {
	// GetOrCreateWallet returns the owner's wallet, creating it with a zero
	// balance. Concurrent first calls for one owner resolve to one row.
	GetOrCreateWallet(ctx context.Context, ownerID string) (*Wallet, error)
	LockWallet(ctx context.Context, walletID uuid.UUID) (*Wallet, error)
	SaveWalletBalance(ctx context.Context, w *Wallet) error

	// LastBalanceAfter returns the balance_after of the newest entry; ok is
	// false for a wallet with no entries.
	LastBalanceAfter(ctx context.Context, walletID uuid.UUID) (bal decimal.Decimal, ok bool, err error)
	AppendEntry(ctx context.Context, e *Entry) error
	EntryForOrder(ctx context.Context, orderID string) (*Entry, error)
	// WalletEntries returns all entries of a wallet oldest first.
	WalletEntries(ctx context.Context, walletID uuid.UUID) ([]Entry, error)

	LockOrder(ctx context.Context, orderID string) (*Order, error)
	MarkOrderSettled(ctx context.Context, orderID string, amount decimal.Decimal) error
	// CommissionPercent returns the platform setting; ok is false when unset.
	CommissionPercent(ctx context.Context) (pct decimal.Decimal, ok bool, err error)

	InsertWithdrawal(ctx context.Context, w *Withdrawal) error
	LockWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error)
	SaveWithdrawalReview(ctx context.Context, w *Withdrawal) error
}

type EntryFilter struct {
	OwnerID  string // empty means every wallet
	WalletID uuid.UUID
	Limit    int
	Offset   int
}

type WithdrawalFilter struct {
	SellerID string // empty means every seller
	Status   WithdrawalStatus
	Limit    int
	Offset   int
}

// PayoutDirectory reads the payout details a seller keeps with the identity
// service. A nil destination with a nil error means none on file.
type PayoutDirectory interface {
	PayoutDestination(ctx context.Context, sellerID string) (*PayoutDestination, error)
}

// OrderLocker serializes settlement triggers for one order across
// instances before the database transaction is opened.
type OrderLocker interface {
	LockOrder(ctx context.Context, orderID string) (unlock func(context.Context) error, err error)
}

type EventType string

const (
	EventSettlementCredited  EventType = "settlement.credited"
	EventWithdrawalRequested EventType = "withdrawal.requested"
	EventWithdrawalApproved  EventType = "withdrawal.approved"
	EventWithdrawalRejected  EventType = "withdrawal.rejected"
)

// Event is published after a transaction commits.
type Event struct {
	Type         EventType       `json:"type"`
	OwnerID      string          `json:"owner_id"`
	WalletID     uuid.UUID       `json:"wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
	Balance      decimal.Decimal `json:"balance"`
	OrderID      string          `json:"order_id,omitempty"`
	WithdrawalID *uuid.UUID      `json:"withdrawal_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	At           time.Time       `json:"at"`
}

// Notifier receives committed events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
