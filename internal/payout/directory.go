// Package payout reads and writes the bank and UPI details sellers keep on
// file for withdrawals.
package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

var ErrIncomplete = errors.New("payout details need holder name, account number and IFSC, or a UPI id")

type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// PayoutDestination returns nil, nil when the seller has nothing on file.
func (d *Directory) PayoutDestination(ctx context.Context, sellerID string) (*ledger.PayoutDestination, error) {
	var dest ledger.PayoutDestination
	err := d.pool.QueryRow(ctx, `
		SELECT account_holder_name, account_number, ifsc_code, upi_id
		FROM payout_destinations
		WHERE seller_id = $1`, sellerID).
		Scan(&dest.HolderName, &dest.AccountNumber, &dest.IFSC, &dest.UPIID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query payout destination: %w", err)
	}
	return &dest, nil
}

// Save stores the seller's payout details after normalizing them.
func (d *Directory) Save(ctx context.Context, sellerID string, dest ledger.PayoutDestination) error {
	dest = Normalize(dest)
	if err := Validate(dest); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO payout_destinations (seller_id, account_holder_name, account_number, ifsc_code, upi_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (seller_id) DO UPDATE SET
			account_holder_name = EXCLUDED.account_holder_name,
			account_number      = EXCLUDED.account_number,
			ifsc_code           = EXCLUDED.ifsc_code,
			upi_id              = EXCLUDED.upi_id,
			updated_at          = NOW()`,
		sellerID, dest.HolderName, dest.AccountNumber, dest.IFSC, dest.UPIID)
	if err != nil {
		return fmt.Errorf("save payout destination: %w", err)
	}
	return nil
}

// Normalize trims every field and upper-cases the IFSC code.
func Normalize(d ledger.PayoutDestination) ledger.PayoutDestination {
	return ledger.PayoutDestination{
		HolderName:    strings.TrimSpace(d.HolderName),
		AccountNumber: strings.TrimSpace(d.AccountNumber),
		IFSC:          strings.ToUpper(strings.TrimSpace(d.IFSC)),
		UPIID:         strings.TrimSpace(d.UPIID),
	}
}

// Validate accepts full bank details, a UPI id, or both. Partial bank
// details are rejected even when a UPI id is present.
func Validate(d ledger.PayoutDestination) error {
	bankFields := 0
	for _, f := range []string{d.HolderName, d.AccountNumber, d.IFSC} {
		if f != "" {
			bankFields++
		}
	}
	if bankFields > 0 && bankFields < 3 {
		return fmt.Errorf("%w: bank details are partial", ErrIncomplete)
	}
	if !d.Complete() {
		return ErrIncomplete
	}
	return nil
}
