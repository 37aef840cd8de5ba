package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/logger"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and pings it.
func Init(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	Conn = pool
	logger.Log.Info("connected to postgres")
	return nil
}

func Close() {
	if Conn != nil {
		Conn.Close()
	}
}

// EnsureSchema creates the ledger tables when missing and adds the
// settlement columns to orders. Every statement is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"wallets", ensureWalletsTable},
		{"withdrawal_requests", ensureWithdrawalRequestsTable},
		{"ledger_entries", ensureLedgerEntriesTable},
		{"payout_destinations", ensurePayoutDestinationsTable},
		{"platform_settings", ensurePlatformSettingsTable},
		{"orders", ensureOrdersSettlementColumns},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
		logger.Log.Debug("schema ensured", zap.String("table", s.name))
	}
	return nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, table string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
	return exists, err
}

func ensureWalletsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			id UUID PRIMARY KEY,
			owner_id TEXT NOT NULL UNIQUE,
			balance NUMERIC(14,2) NOT NULL DEFAULT 0
				CONSTRAINT wallets_balance_check CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func ensureWithdrawalRequestsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id UUID PRIMARY KEY,
			seller_id TEXT NOT NULL,
			wallet_id UUID NOT NULL REFERENCES wallets(id),
			holder_name TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			ifsc_code TEXT NOT NULL DEFAULT '',
			upi_id TEXT NOT NULL DEFAULT '',
			amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','APPROVED','REJECTED')),
			admin_note TEXT NOT NULL DEFAULT '',
			reviewed_by TEXT NULL,
			reviewed_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_seller ON withdrawal_requests(seller_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_status ON withdrawal_requests(status);
	`)
	return err
}

func ensureLedgerEntriesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			seq BIGSERIAL NOT NULL UNIQUE,
			wallet_id UUID NOT NULL REFERENCES wallets(id),
			direction TEXT NOT NULL CHECK (direction IN ('CREDIT','DEBIT')),
			source TEXT NOT NULL CHECK (source IN ('ORDER_SETTLEMENT','WITHDRAWAL')),
			amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			balance_after NUMERIC(14,2) NOT NULL CHECK (balance_after >= 0),
			order_ref TEXT NULL,
			withdrawal_ref UUID NULL REFERENCES withdrawal_requests(id),
			description TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet_seq ON ledger_entries(wallet_id, seq);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_entries_order_settlement
			ON ledger_entries(order_ref) WHERE source = 'ORDER_SETTLEMENT';
		CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_entries_withdrawal
			ON ledger_entries(withdrawal_ref) WHERE withdrawal_ref IS NOT NULL;
	`)
	return err
}

func ensurePayoutDestinationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payout_destinations (
			seller_id TEXT PRIMARY KEY,
			account_holder_name TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			ifsc_code TEXT NOT NULL DEFAULT '',
			upi_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func ensurePlatformSettingsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS platform_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// ensureOrdersSettlementColumns creates a minimal orders table for a fresh
// database; an orders table owned by the order service only gets the two
// settlement columns.
func ensureOrdersSettlementColumns(ctx context.Context, pool *pgxpool.Pool) error {
	exists, err := tableExists(ctx, pool, "orders")
	if err != nil {
		return err
	}
	if !exists {
		_, err = pool.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS orders (
				id TEXT PRIMARY KEY,
				seller_id TEXT NOT NULL,
				total NUMERIC(14,2) NOT NULL,
				currency TEXT NOT NULL DEFAULT 'INR',
				payment_status TEXT NOT NULL DEFAULT 'unpaid',
				status TEXT NOT NULL DEFAULT 'pending',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			return err
		}
		logger.Log.Info("orders table created")
	}

	for _, stmt := range []string{
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS settlement_credited BOOLEAN NOT NULL DEFAULT FALSE`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS settlement_amount NUMERIC(14,2) NOT NULL DEFAULT 0`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
