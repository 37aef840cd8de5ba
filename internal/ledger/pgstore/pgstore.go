// Package pgstore implements ledger.Store on Postgres through pgxpool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// New returns a store whose transactions give up waiting for a row lock
// after lockTimeout. Zero leaves the server default.
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return mapError(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.WalletID != uuid.Nil {
		args = append(args, f.WalletID)
		where = append(where, fmt.Sprintf("e.wallet_id = $%d", len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("w.owner_id = $%d", len(args)))
	}
	q := `SELECT ` + entryCols + ` FROM ledger_entries e JOIN wallets w ON w.id = e.wallet_id`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY e.seq DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collectEntries(rows)
}

func (s *Store) GetWithdrawal(ctx context.Context, id uuid.UUID) (*ledger.Withdrawal, error) {
	wd, err := scanWithdrawal(s.pool.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrWithdrawalNotFound
	}
	return wd, mapError(err)
}

func (s *Store) ListWithdrawals(ctx context.Context, f ledger.WithdrawalFilter) ([]ledger.Withdrawal, error) {
	var (
		where []string
		args  []any
	)
	if f.SellerID != "" {
		args = append(args, f.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + withdrawalCols + ` FROM withdrawal_requests`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []ledger.Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, *wd)
	}
	return out, mapError(rows.Err())
}

// SetCommissionPercent records the platform commission read by later
// settlements. Orders already settled keep the amount they were credited.
func (s *Store) SetCommissionPercent(ctx context.Context, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: got %s", ledger.ErrInvalidCommission, pct)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO platform_settings (key, value, updated_at)
		VALUES ('commission_percent', $1, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, pct.String())
	return mapError(err)
}
