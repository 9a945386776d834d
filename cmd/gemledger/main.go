package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gemledger/gemledger/internal/ap"
	"github.com/gemledger/gemledger/internal/app"
	"github.com/gemledger/gemledger/internal/ar"
	"github.com/gemledger/gemledger/internal/audit"
	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/observability"
	"github.com/gemledger/gemledger/internal/platform/cache"
	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/rap"
	"github.com/gemledger/gemledger/internal/sales"
	"github.com/gemledger/gemledger/internal/shared"
	"github.com/gemledger/gemledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithMaxConnLifetime(cfg.PGMaxConnLifetime))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		version, _ := db.SchemaVersion(ctx, dbpool)
		logger.Info("schema migrated", slog.Int64("version", version))
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The rap calculator falls back to Postgres while Redis is down.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()
	policy := cfg.TxPolicy()

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, logger)

	tax := money.NewGSTStrategy(cfg.CGSTRate, cfg.SGSTRate, cfg.CompanyGSTNumber)
	salesService := sales.NewService(sales.NewRepository(dbpool, policy), tax, auditLogger, idempotencyStore, metrics, logger)
	arService := ar.NewService(ar.NewRepository(dbpool, policy), auditLogger, idempotencyStore, metrics, logger)
	apService := ap.NewService(ap.NewRepository(dbpool, policy), auditLogger, idempotencyStore, metrics, logger)

	rapCache := cache.NewVersioned(redisClient, "rap", cfg.RapCacheTTL)
	rapCalculator := rap.NewCalculator(rap.NewRepository(dbpool), rapCache, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		Database:             dbpool,
		InvoiceHandler:       sales.NewHandler(logger, salesService, app.APIPrefix+"/invoices"),
		ReceivableHandler:    ar.NewHandler(logger, arService),
		SellerPaymentHandler: ap.NewHandler(logger, apService, app.APIPrefix+"/seller-payments"),
		RapHandler:           rap.NewHandler(logger, rapCalculator),
		InventoryHandler:     inventory.NewHandler(logger, inventoryService),
		AuditHandler:         audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
