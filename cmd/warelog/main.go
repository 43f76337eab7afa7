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

	"github.com/warelog/warelog/internal/app"
	"github.com/warelog/warelog/internal/audit"
	"github.com/warelog/warelog/internal/batch"
	"github.com/warelog/warelog/internal/catalog"
	"github.com/warelog/warelog/internal/drafts"
	"github.com/warelog/warelog/internal/observability"
	"github.com/warelog/warelog/internal/ops"
	"github.com/warelog/warelog/internal/platform/cache"
	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/reports"
	"github.com/warelog/warelog/internal/shared"
	"github.com/warelog/warelog/internal/users"
	"github.com/warelog/warelog/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	opsRepo := ops.NewRepository(dbpool, cfg.OpLockTimeout)
	opsService := ops.NewService(opsRepo, auditLogger, idempotencyStore, ops.Config{
		MaxAttempts: cfg.OpMaxRetries,
	}, logger)
	opsHandler := ops.NewHandler(opsService, metrics, logger)

	batchHandler := batch.NewHandler(dbpool)

	draftStore := drafts.NewStore(redisClient, cfg.DraftTTL)
	draftsHandler := drafts.NewHandler(logger, draftStore, opsService)

	reportsRepo := reports.NewRepository(dbpool)
	reportsService := reports.NewService(reportsRepo, cfg.ExpiryScanDays)
	reportsHandler := reports.NewHandler(reportsService)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(usersService)

	auditService := audit.NewService(dbpool)
	auditHandler := audit.NewHandler(auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		OpsHandler:     opsHandler,
		BatchHandler:   batchHandler,
		DraftsHandler:  draftsHandler,
		ReportsHandler: reportsHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
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
