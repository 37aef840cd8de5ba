package ledger

import "errors"

// Validation errors: reported to the caller, nothing changed.
var (
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrMissingPayoutDestination = errors.New("add bank details or a UPI id before requesting a withdrawal")
	ErrInsufficientBalance      = errors.New("insufficient wallet balance")
	ErrOrderNotPaid             = errors.New("only paid orders can be settled to the seller wallet")
)

// State conflicts.
var ErrInvalidStateTransition = errors.New("only pending withdrawal requests can be reviewed")

// Concurrency errors. Safe to retry.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Invariant violations. These are bugs or misconfiguration, never user input.
var (
	ErrNegativeBalance   = errors.New("wallet balance would become negative")
	ErrLedgerMismatch    = errors.New("ledger balance_after does not match wallet balance")
	ErrInvalidCommission = errors.New("commission percent must be between 0 and 100")
)

var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrEntryNotFound      = errors.New("ledger entry not found")
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsValidation reports errors caused by the request itself.
func IsValidation(err error) bool {
	return isAny(err, ErrInvalidAmount, ErrMissingPayoutDestination, ErrInsufficientBalance, ErrOrderNotPaid)
}

// IsConflict reports requests that hit an entity in the wrong state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

// IsRetryable reports errors the caller should re-issue.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsInvariant reports errors that mean the ledger or its configuration is broken.
func IsInvariant(err error) bool {
	return isAny(err, ErrNegativeBalance, ErrLedgerMismatch, ErrInvalidCommission)
}

func IsNotFound(err error) bool {
	return isAny(err, ErrWalletNotFound, ErrWithdrawalNotFound, ErrOrderNotFound, ErrEntryNotFound)
}
