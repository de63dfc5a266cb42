package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sitebooks/internal/app"
	"github.com/odyssey-erp/sitebooks/internal/commands"
	"github.com/odyssey-erp/sitebooks/internal/platform/cache"
	"github.com/odyssey-erp/sitebooks/internal/platform/db"
	"github.com/odyssey-erp/sitebooks/internal/shared"
	"github.com/odyssey-erp/sitebooks/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	env := commands.Env{
		Migrate: func() error { return db.Migrate(cfg.PGDSN, logger) },
		MigrationVersion: func() (uint, bool, error) {
			return db.MigrationVersion(cfg.PGDSN)
		},
		Open: func(ctx context.Context) (*commands.Backend, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
			if err != nil {
				return nil, nil, err
			}
			redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			if err != nil {
				logger.Warn("redis unavailable", slog.Any("error", err))
			}
			jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			if err != nil {
				pool.Close()
				_ = redisClient.Close()
				return nil, nil, err
			}
			services := app.NewServices(cfg, pool, redisClient, nil, logger)
			closeFn := func() {
				_ = jobClient.Close()
				_ = redisClient.Close()
				pool.Close()
			}
			return &commands.Backend{
				Seeder:      services.Accounts,
				Importer:    services.Importer,
				Jobs:        jobClient,
				Idempotency: shared.NewIdempotencyStore(pool),
			}, closeFn, nil
		},
	}

	if err := commands.NewRootCommand(env).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
