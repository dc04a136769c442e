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

	"github.com/odyssey-erp/odyssey-rvu/internal/app"
	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-rvu/internal/audit/http"
	"github.com/odyssey-erp/odyssey-rvu/internal/identity"
	"github.com/odyssey-erp/odyssey-rvu/internal/observability"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-rvu/internal/review"
	reviewhttp "github.com/odyssey-erp/odyssey-rvu/internal/review/http"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
	"github.com/odyssey-erp/odyssey-rvu/internal/simulation"
	simulationhttp "github.com/odyssey-erp/odyssey-rvu/internal/simulation/http"
	"github.com/odyssey-erp/odyssey-rvu/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "odyssey-rvu"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.PGMigrateOnStart {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(cfg.Redis().Asynq(), cfg.AuditRetryMax)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer func() { _ = inspector.Close() }()

	readModels := cache.NewVersioned(redisClient, "rvu:readmodels", cfg.SimulationCacheTTL)
	if err := readModels.Listen(ctx, func(version int64) {
		logger.Debug("read model cache bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe cache bumps", slog.Any("error", err))
	}

	reviewRepo := review.NewRepository(dbpool)
	reviewService := review.NewService(reviewRepo, review.ServiceConfig{
		Logger:         logger,
		Recorder:       audit.NewRecorder(logger, jobClient, metrics),
		Locker:         lock.New(redisClient, cfg.MassLockTTL, logger),
		Invalidator:    readModels,
		Metrics:        metrics,
		NearTermMonths: cfg.NearTermMonths,
	})
	auditStore := audit.NewStore(dbpool)
	simulationService := simulation.NewService(simulation.NewRepositorySource(reviewRepo), readModels, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Identity:          identity.NewProvider(cfg.JWTSecret, cfg.JWTIssuer),
		ReviewHandler:     reviewhttp.NewHandler(logger, reviewService, shared.NewIdempotencyStore(dbpool)),
		AuditHandler:      audithttp.NewHandler(logger, audit.NewService(auditStore)),
		SimulationHandler: simulationhttp.NewHandler(logger, simulationService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Ready: func(r *http.Request) error {
			if err := dbpool.Ping(r.Context()); err != nil {
				return err
			}
			return redisClient.Ping(r.Context()).Err()
		},
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
