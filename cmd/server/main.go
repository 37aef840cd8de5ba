package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/alerts"
	"github.com/sudo-init-do/crafthub-ledger/internal/api"
	"github.com/sudo-init-do/crafthub-ledger/internal/config"
	"github.com/sudo-init-do/crafthub-ledger/internal/db"
	"github.com/sudo-init-do/crafthub-ledger/internal/feed"
	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/ledger/pgstore"
	"github.com/sudo-init-do/crafthub-ledger/internal/locks"
	"github.com/sudo-init-do/crafthub-ledger/internal/logger"
	"github.com/sudo-init-do/crafthub-ledger/internal/payout"
)

func main() {
	cfg, err := config.Load(".", "./configs")
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	log := logger.Log
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Init(ctx, cfg.DB.DSN()); err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx, db.Conn); err != nil {
		log.Fatal("schema ensure failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password}

	queue := asynq.NewClient(redisOpt)
	defer queue.Close()
	enqueuer := alerts.NewEnqueuer(queue)

	hub := feed.NewHub(log)

	lockOpts := locks.DefaultOptions()
	lockOpts.Expiry = cfg.SettlementLockTTL

	svc := ledger.New(
		pgstore.New(db.Conn, cfg.LockTimeout),
		payout.NewDirectory(db.Conn),
		ledger.WithLogger(log),
		ledger.WithDefaultCommission(cfg.Commission()),
		ledger.WithOrderLocker(locks.NewRedisOrderLocker(rdb, lockOpts, log)),
		ledger.WithNotifiers(hub, enqueuer),
	)

	// Background worker: settlement triggers, wallet emails and admin alerts.
	worker := alerts.NewServer(redisOpt, cfg.Alerts.Concurrency, log)
	proc := alerts.NewProcessor(svc, alerts.PGRecipients{Pool: db.Conn},
		alerts.NewMailer(cfg.SMTP, log), cfg.Alerts.AdminEmail, log)
	if err := worker.Start(proc.Mux()); err != nil {
		log.Fatal("worker start failed", zap.Error(err))
	}
	defer worker.Shutdown()

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())

	h := api.NewHandler(svc, log,
		api.WithAlerts(enqueuer),
		api.WithSettlementQueue(enqueuer),
		api.WithReadiness(func(ctx context.Context) error {
			if err := db.Conn.Ping(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		}),
	)
	api.Register(e, h, cfg.JWT.Secret, hub.ServeWS)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()
	log.Info("ledger service started", zap.String("port", cfg.Port))

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
