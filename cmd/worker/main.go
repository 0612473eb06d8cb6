package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"presensi/internal/apiclient"
	"presensi/internal/attendance"
	"presensi/internal/config"
	"presensi/internal/meeting"
	"presensi/internal/queue"
	"presensi/internal/store"
)

// Worker consumes sync jobs and refreshes the Postgres mirror from upstream.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.QueueBackend == "memory" {
		logger.Error("worker needs the redis queue backend; the api runs sync in-process for memory")
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	repo := attendance.NewRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	tokens := store.NewRedisTokens(redisClient.Client, "")
	client := apiclient.New(cfg.UpstreamURL, cfg.UpstreamTimeout, tokens, logger)
	remote := func(key string) attendance.Source { return client.As(key) }
	meeting.SetTimestampLocation(cfg.Location())
	svc := attendance.NewService(remote, cfg.Location(), logger).WithMirror(remote, repo)

	q := queue.NewRedisQueue(redisClient.Client, "")
	logger.Info("worker started, waiting for jobs", slog.Int("workers", cfg.WorkerConcurrency))
	if err := svc.RunSync(ctx, q, cfg.WorkerConcurrency); err != nil {
		logger.Error("worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
