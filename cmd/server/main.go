// Package main is the entrypoint for the InsightBase API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anishsharma/insightbase/internal/api"
	"github.com/anishsharma/insightbase/internal/api/handler"
	mw "github.com/anishsharma/insightbase/internal/api/middleware"
	"github.com/anishsharma/insightbase/internal/api/response"
	"github.com/anishsharma/insightbase/internal/blob"
	"github.com/anishsharma/insightbase/internal/cache"
	"github.com/anishsharma/insightbase/internal/config"
	"github.com/anishsharma/insightbase/internal/ingest"
	"github.com/anishsharma/insightbase/internal/queue"
	"github.com/anishsharma/insightbase/internal/sheets"
	"github.com/anishsharma/insightbase/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "storage_root", cfg.Storage.Root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create job queue
	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL, queue.DefaultKey)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	// 6. Create blob storage
	blobs, err := blob.NewFSStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	// 7. Optional Google Sheets client; sheet sync stays disabled without
	// credentials, everything else works
	var sheetsClient sheets.Client
	if cfg.Sheets.CredentialsFile != "" {
		gc, err := sheets.NewGoogleClient(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			return fmt.Errorf("create sheets client: %w", err)
		}
		sheetsClient = gc
		slog.Info("google sheets client initialized")
	} else {
		slog.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, sheet sync disabled")
	}

	// 8. Create store and ingestion gateway
	pgStore := store.NewPostgresStore(pool)
	gateway := ingest.NewGateway(pgStore, blobs, jobQueue, redisCache, sheetsClient)

	// 9. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		UploadHandler:     handler.NewUploadHandler(gateway, cfg.Ingest.MaxUploadBytes),
		APISyncHandler:    handler.NewAPISyncHandler(gateway),
		SheetsSyncHandler: handler.NewSheetsSyncHandler(gateway),

		ListUploadsHandler:  handler.NewListUploadsHandler(pgStore),
		GetUploadHandler:    handler.NewGetUploadHandler(pgStore),
		DeleteUploadHandler: handler.NewDeleteUploadHandler(pgStore, blobs),

		ListResultsHandler: handler.NewListResultsHandler(pgStore),
		GetResultHandler:   handler.NewGetResultHandler(pgStore),

		PollJobHandler: handler.NewPollJobHandler(pgStore, redisCache),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
