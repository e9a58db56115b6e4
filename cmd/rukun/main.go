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

	"github.com/rukunwarga/rukun/cmd/rukun/cli"
	"github.com/rukunwarga/rukun/internal/announcements"
	"github.com/rukunwarga/rukun/internal/app"
	"github.com/rukunwarga/rukun/internal/auth"
	"github.com/rukunwarga/rukun/internal/documents"
	"github.com/rukunwarga/rukun/internal/observability"
	"github.com/rukunwarga/rukun/internal/payments"
	"github.com/rukunwarga/rukun/internal/platform/cache"
	"github.com/rukunwarga/rukun/internal/platform/db"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr, cfg.OverdueBatchLimit)
		defer jobsCLI.Close()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	metrics := observability.NewMetrics()
	services, err := app.NewServices(app.ServiceDeps{
		Config:   cfg,
		Pool:     pool,
		Redis:    redisClient,
		Notifier: jobClient,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Resolver:             services.Auth,
		Capabilities:         services.Model,
		AuthHandler:          auth.NewHandler(logger, services.Auth),
		CapabilitiesHandler:  rbac.NewHandler(services.Model),
		DocumentsHandler:     documents.NewHandler(services.Documents),
		AnnouncementsHandler: announcements.NewHandler(services.Announcements),
		PaymentsHandler:      payments.NewHandler(services.Payments, jobClient, cfg.Location()),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
