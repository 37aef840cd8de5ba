// Command ledgerctl runs wallet ledger maintenance tasks against the
// configured database.
//
//	ledgerctl verify -wallet <uuid>
//	ledgerctl set-commission -percent 12.5
//	ledgerctl settle -order <id> [-async]
//	ledgerctl set-payout -seller <id> [-holder ... -account ... -ifsc ...] [-upi ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/crafthub-ledger/internal/alerts"
	"github.com/sudo-init-do/crafthub-ledger/internal/config"
	"github.com/sudo-init-do/crafthub-ledger/internal/db"
	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/ledger/pgstore"
	"github.com/sudo-init-do/crafthub-ledger/internal/logger"
	"github.com/sudo-init-do/crafthub-ledger/internal/money"
	"github.com/sudo-init-do/crafthub-ledger/internal/payout"
)

const usage = "usage: ledgerctl <verify|set-commission|settle|set-payout> [flags]"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load(".", "./configs")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Init(cfg.LogLevel)

	ctx := context.Background()
	if err := db.Init(ctx, cfg.DB.DSN()); err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx, db.Conn); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	store := pgstore.New(db.Conn, cfg.LockTimeout)
	directory := payout.NewDirectory(db.Conn)
	svc := ledger.New(store, directory,
		ledger.WithLogger(logger.Log),
		ledger.WithDefaultCommission(cfg.Commission()))

	switch cmd {
	case "verify":
		err = verify(ctx, svc, args)
	case "set-commission":
		err = setCommission(ctx, store, args)
	case "settle":
		err = settle(ctx, svc, cfg, args)
	case "set-payout":
		err = setPayout(ctx, directory, args)
	default:
		log.Fatal(usage)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func verify(ctx context.Context, svc *ledger.Service, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	walletID := fs.String("wallet", "", "Wallet id to replay")
	_ = fs.Parse(args)

	id, err := uuid.Parse(*walletID)
	if err != nil {
		return fmt.Errorf("invalid -wallet: %w", err)
	}
	v, err := svc.VerifyWallet(ctx, id)
	if v == nil {
		return err
	}
	fmt.Printf("wallet %s: %d entries, replayed %s, balance %s\n",
		v.WalletID, v.Entries, money.Format(v.Replayed), money.Format(v.Balance))
	if !v.Consistent {
		return fmt.Errorf("inconsistent, first bad entry seq %d: %w", v.FirstBadSeq, ledger.ErrLedgerMismatch)
	}
	fmt.Println("consistent")
	return nil
}

func setCommission(ctx context.Context, store *pgstore.Store, args []string) error {
	fs := flag.NewFlagSet("set-commission", flag.ExitOnError)
	pct := fs.String("percent", "", "Platform commission percent, 0 to 100")
	_ = fs.Parse(args)

	d, err := decimal.NewFromString(*pct)
	if err != nil {
		return fmt.Errorf("invalid -percent: %w", err)
	}
	if err := store.SetCommissionPercent(ctx, d); err != nil {
		return err
	}
	fmt.Printf("Commission set to %s%%.\n", d)
	return nil
}

func settle(ctx context.Context, svc *ledger.Service, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	orderID := fs.String("order", "", "Order id to settle")
	async := fs.Bool("async", false, "Queue the settlement for the worker instead of running it here")
	_ = fs.Parse(args)

	if *orderID == "" {
		return errors.New("-order is required")
	}
	if *async {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer client.Close()
		if err := alerts.NewEnqueuer(client).EnqueueSettlement(ctx, *orderID); err != nil {
			return err
		}
		fmt.Printf("Settlement of order %s queued.\n", *orderID)
		return nil
	}

	entry, err := svc.SettleOrder(ctx, *orderID)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Printf("Order %s settled with nothing to credit.\n", *orderID)
		return nil
	}
	fmt.Printf("Order %s settled: %s credited, balance %s.\n",
		*orderID, money.Format(entry.Amount), money.Format(entry.BalanceAfter))
	return nil
}

func setPayout(ctx context.Context, directory *payout.Directory, args []string) error {
	fs := flag.NewFlagSet("set-payout", flag.ExitOnError)
	seller := fs.String("seller", "", "Seller user id")
	holder := fs.String("holder", "", "Account holder name")
	account := fs.String("account", "", "Bank account number")
	ifsc := fs.String("ifsc", "", "IFSC code")
	upi := fs.String("upi", "", "UPI id")
	_ = fs.Parse(args)

	if *seller == "" {
		return errors.New("-seller is required")
	}
	dest := ledger.PayoutDestination{HolderName: *holder, AccountNumber: *account, IFSC: *ifsc, UPIID: *upi}
	if err := directory.Save(ctx, *seller, dest); err != nil {
		return err
	}
	fmt.Printf("Payout details saved for %s.\n", *seller)
	return nil
}
