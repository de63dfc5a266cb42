package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sitebooks/internal/app"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/observability"
	"github.com/odyssey-erp/sitebooks/internal/platform/db"
	"github.com/odyssey-erp/sitebooks/internal/shared"
	"github.com/odyssey-erp/sitebooks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	stockRepo := inventory.NewRepository(pool)
	stock := inventory.NewService(stockRepo, shared.NewAuditLogger(pool), inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	}, metrics, logger)
	ledger := jobs.NewLedgerStore(pool)

	stockJob := jobs.NewStockRebuildJob(stock, jobs.CompanyListerFunc(stockRepo.ListCompanyIDs), logger, metrics.Jobs())
	integrityJob := jobs.NewLedgerIntegrityJob(ledger, ledger, logger, metrics.Jobs())

	cron, err := jobs.MaintenanceCron(cfg.StockRebuildCron, cfg.LedgerIntegrityCron)
	if err != nil {
		logger.Error("build maintenance schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers:    jobs.MaintenanceHandlers(stockJob, integrityJob),
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
