package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/fiscaat/fiscaat/internal/app"
	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/ledger/summary"
	"github.com/fiscaat/fiscaat/internal/platform/cache"
	"github.com/fiscaat/fiscaat/internal/platform/db"
	"github.com/fiscaat/fiscaat/internal/shared"
	"github.com/fiscaat/fiscaat/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := ledger.NewRepository(pool)
	readCache := summary.NewCache(redisClient, cfg.CacheTTL)
	svc := ledger.NewService(repo, shared.NewAuditLogger(pool), ledger.Config{RequireApproval: cfg.RequireApproval})
	svc.WithApprovals(shared.NewApprovalRecorder(pool, logger))
	svc.WithInvalidator(readCache)

	if err := readCache.Listen(ctx); err != nil {
		logger.Warn("cache listen", slog.Any("error", err))
	}

	scanner := jobs.NewIntegrityScanner(repo, logger)
	refresher := jobs.NewAggregateRefresher(svc, repo, logger)

	refreshTask, err := jobs.NewAggregatesRefreshTask(jobs.AggregatesRefreshPayload{})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.IntegrityScanCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec: cfg.IntegrityScanCron,
			Task: jobs.NewIntegrityScanTask(),
		})
	}
	if cfg.AggregatesRefreshCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec: cfg.AggregatesRefreshCron,
			Task: refreshTask,
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIntegrityScan, Handler: scanner.Handle},
			{Type: jobs.TaskAggregatesRefresh, Handler: refresher.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
