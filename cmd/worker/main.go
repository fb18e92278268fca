// Package main is the entrypoint for the InsightBase normalization worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/anishsharma/insightbase/internal/blob"
	"github.com/anishsharma/insightbase/internal/cache"
	"github.com/anishsharma/insightbase/internal/config"
	"github.com/anishsharma/insightbase/internal/ingest"
	"github.com/anishsharma/insightbase/internal/queue"
	"github.com/anishsharma/insightbase/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "worker_count", cfg.Ingest.WorkerCount)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL, queue.DefaultKey)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	blobs, err := blob.NewFSStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	runner := ingest.NewRunner(pgStore, blobs, jobQueue, redisCache, cfg.Ingest.ProcessTimeout)

	slog.Info("starting workers", "count", cfg.Ingest.WorkerCount)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Ingest.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := runner.Run(ctx, workerID); err != nil {
				slog.Error("worker stopped with error", "worker_id", workerID, "error", err)
			}
		}(i)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight jobs...")
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}
