package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/gigchain/backend/internal/auth"
	"github.com/gigchain/backend/internal/config"
	"github.com/gigchain/backend/internal/contracts"
	"github.com/gigchain/backend/internal/database"
	"github.com/gigchain/backend/internal/escrow"
	"github.com/gigchain/backend/internal/finance"
	"github.com/gigchain/backend/internal/ledger"
	"github.com/gigchain/backend/internal/middleware"
	"github.com/gigchain/backend/internal/notify"
	"github.com/gigchain/backend/internal/payout"
	"github.com/gigchain/backend/internal/projects"
	"github.com/gigchain/backend/internal/reviews"
	"github.com/gigchain/backend/internal/router"
	"github.com/gigchain/backend/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo)

	walletRepo := wallet.NewRepository(pool)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, walletRepo, cfg.JWTSecret, cfg.DefaultCurrency)

	notifyRepo := notify.NewRepository(pool)

	// Enqueue funcs are set after the River client is created (breaks the
	// init cycle between services and workers).
	var insertMu sync.Mutex
	var notifyTxFn notify.EnqueueTxFunc
	var notifyFn notify.EnqueueFunc
	var payoutTxFn payout.EnqueueTxFunc

	enqueueNotifyTx := func(ctx context.Context, tx pgx.Tx, args notify.UserNotificationArgs) error {
		insertMu.Lock()
		fn := notifyTxFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}
	enqueueNotify := func(ctx context.Context, args notify.UserNotificationArgs) error {
		insertMu.Lock()
		fn := notifyFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, args)
	}
	enqueuePayout := func(ctx context.Context, tx pgx.Tx, args payout.PayoutArgs) error {
		insertMu.Lock()
		fn := payoutTxFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	contractsRepo := contracts.NewRepository(pool)
	contractsSvc := contracts.NewService(contractsRepo, enqueueNotify)

	projectsRepo := projects.NewRepository(pool)
	projectsSvc := projects.NewService(pool, projectsRepo, contractsSvc, enqueueNotify)

	escrowRepo := escrow.NewRepository(pool)
	escrowSvc := escrow.NewService(pool, escrowRepo, walletRepo, contractsRepo, contractsRepo,
		ledgerSvc, enqueueNotifyTx, cfg.EscrowFeeBps)

	financeSvc := finance.NewService(pool, walletRepo, ledgerSvc, enqueueNotifyTx, enqueuePayout,
		cfg.DepositFeeBps, cfg.WithdrawalFeeBps)

	reviewsRepo := reviews.NewRepository(pool)
	reviewsSvc := reviews.NewService(reviewsRepo, contractsRepo, enqueueNotify)

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewUserNotificationWorker(notifyRepo))
	river.AddWorker(workers, payout.NewWorker(financeSvc, cfg.PayoutProviderURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	notifyTxFn = func(ctx context.Context, tx pgx.Tx, args notify.UserNotificationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	notifyFn = func(ctx context.Context, args notify.UserNotificationArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}
	payoutTxFn = func(ctx context.Context, tx pgx.Tx, args payout.PayoutArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	handlers := router.Handlers{
		Auth:      auth.NewHandler(authSvc, logger),
		Wallets:   wallet.NewHandler(walletRepo, ledgerSvc, logger),
		Escrow:    escrow.NewHandler(escrowSvc, walletRepo, logger),
		Finance:   finance.NewHandler(financeSvc, logger),
		Contracts: contracts.NewHandler(contractsSvc, logger),
		Projects:  projects.NewHandler(projectsSvc, logger),
		Reviews:   reviews.NewHandler(reviewsSvc, logger),
		Notify:    notify.NewHandler(notifyRepo, logger),
	}

	sessionAuth := middleware.SessionAuth(authSvc, authRepo)
	apiRouter := router.New(handlers, sessionAuth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
