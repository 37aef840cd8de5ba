package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

// mapError translates driver failures into ledger errors. Errors already
// carrying a ledger sentinel pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.LockNotAvailable, pgerrcode.DeadlockDetected, pgerrcode.SerializationFailure:
			return fmt.Errorf("%w: %s", ledger.ErrLockTimeout, pgErr.Message)
		case pgerrcode.CheckViolation:
			if pgErr.ConstraintName == "wallets_balance_check" {
				return fmt.Errorf("%w: %s", ledger.ErrNegativeBalance, pgErr.Message)
			}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ledger.ErrLockTimeout, err)
	}
	return err
}
