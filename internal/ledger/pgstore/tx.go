package pgstore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

const (
	walletCols     = `id, owner_id, balance, created_at, updated_at`
	entryCols      = `e.id, e.seq, e.wallet_id, e.direction, e.source, e.amount, e.balance_after, e.order_ref, e.withdrawal_ref, e.description, e.metadata, e.created_at`
	withdrawalCols = `id, seller_id, wallet_id, holder_name, account_number, ifsc_code, upi_id, amount, status, admin_note, reviewed_by, reviewed_at, created_at, updated_at`
)

type pgTx struct {
	tx pgx.Tx
}

func scanWallet(row pgx.Row) (*ledger.Wallet, error) {
	var w ledger.Wallet
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var (
		e         ledger.Entry
		direction string
		source    string
	)
	err := row.Scan(&e.ID, &e.Seq, &e.WalletID, &direction, &source, &e.Amount, &e.BalanceAfter,
		&e.OrderRef, &e.WithdrawalRef, &e.Description, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Direction = ledger.Direction(direction)
	e.Source = ledger.Source(source)
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]ledger.Entry, error) {
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, *e)
	}
	return out, mapError(rows.Err())
}

func scanWithdrawal(row pgx.Row) (*ledger.Withdrawal, error) {
	var (
		wd     ledger.Withdrawal
		status string
	)
	err := row.Scan(&wd.ID, &wd.SellerID, &wd.WalletID,
		&wd.Payout.HolderName, &wd.Payout.AccountNumber, &wd.Payout.IFSC, &wd.Payout.UPIID,
		&wd.Amount, &status, &wd.AdminNote, &wd.ReviewedBy, &wd.ReviewedAt, &wd.CreatedAt, &wd.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wd.Status = ledger.WithdrawalStatus(status)
	return &wd, nil
}

func (t *pgTx) GetOrCreateWallet(ctx context.Context, ownerID string) (*ledger.Wallet, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wallets (id, owner_id, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (owner_id) DO NOTHING`, uuid.New(), ownerID)
	if err != nil {
		return nil, err
	}
	return scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE owner_id = $1`, ownerID))
}

func (t *pgTx) LockWallet(ctx context.Context, walletID uuid.UUID) (*ledger.Wallet, error) {
	w, err := scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrWalletNotFound
	}
	return w, err
}

func (t *pgTx) SaveWalletBalance(ctx context.Context, w *ledger.Wallet) error {
	return t.tx.QueryRow(ctx, `
		UPDATE wallets SET balance = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at`, w.Balance, w.ID).Scan(&w.UpdatedAt)
}

func (t *pgTx) LastBalanceAfter(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, bool, error) {
	var bal decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT balance_after FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY seq DESC LIMIT 1`, walletID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return bal, true, nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries
			(id, wallet_id, direction, source, amount, balance_after, order_ref, withdrawal_ref, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq`,
		e.ID, e.WalletID, string(e.Direction), string(e.Source), e.Amount, e.BalanceAfter,
		e.OrderRef, e.WithdrawalRef, e.Description, meta, e.CreatedAt,
	).Scan(&e.Seq)
}

func (t *pgTx) EntryForOrder(ctx context.Context, orderID string) (*ledger.Entry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, `
		SELECT `+entryCols+` FROM ledger_entries e
		WHERE e.source = 'ORDER_SETTLEMENT' AND e.order_ref = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound
	}
	return e, err
}

func (t *pgTx) WalletEntries(ctx context.Context, walletID uuid.UUID) ([]ledger.Entry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+entryCols+` FROM ledger_entries e
		WHERE e.wallet_id = $1
		ORDER BY e.seq ASC`, walletID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (*ledger.Order, error) {
	var (
		o      ledger.Order
		status string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, seller_id, total, currency, payment_status,
		       settlement_credited, COALESCE(settlement_amount, 0)
		FROM orders
		WHERE id = $1
		FOR UPDATE`, orderID).
		Scan(&o.ID, &o.SellerID, &o.Total, &o.Currency, &status, &o.SettlementCredited, &o.SettlementAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.PaymentStatus = ledger.PaymentStatus(strings.ToUpper(status))
	return &o, nil
}

func (t *pgTx) MarkOrderSettled(ctx context.Context, orderID string, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET settlement_credited = TRUE, settlement_amount = $1, updated_at = NOW()
		WHERE id = $2`, amount, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) CommissionPercent(ctx context.Context) (decimal.Decimal, bool, error) {
	var raw string
	err := t.tx.QueryRow(ctx, `
		SELECT value FROM platform_settings
		WHERE key = 'commission_percent'
		FOR SHARE`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false, errors.Join(ledger.ErrInvalidCommission, err)
	}
	return pct, true, nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, wd *ledger.Withdrawal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO withdrawal_requests
			(id, seller_id, wallet_id, holder_name, account_number, ifsc_code, upi_id,
			 amount, status, admin_note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		wd.ID, wd.SellerID, wd.WalletID,
		wd.Payout.HolderName, wd.Payout.AccountNumber, wd.Payout.IFSC, wd.Payout.UPIID,
		wd.Amount, string(wd.Status), wd.AdminNote, wd.CreatedAt, wd.UpdatedAt)
	return err
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id uuid.UUID) (*ledger.Withdrawal, error) {
	wd, err := scanWithdrawal(t.tx.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrWithdrawalNotFound
	}
	return wd, err
}

// SaveWithdrawalReview only moves a row out of PENDING; a request already
// reviewed by someone else is reported as a state conflict.
func (t *pgTx) SaveWithdrawalReview(ctx context.Context, wd *ledger.Withdrawal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $1, admin_note = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $5
		WHERE id = $6 AND status = 'PENDING'`,
		string(wd.Status), wd.AdminNote, wd.ReviewedBy, wd.ReviewedAt, wd.UpdatedAt, wd.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrInvalidStateTransition
	}
	return nil
}
