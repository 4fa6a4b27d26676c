package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/partner-up-dev/mvp-HA-sub000/config"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/email"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/eventbus"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/health"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/infrastructure/postgres"
	ctxlog "github.com/partner-up-dev/mvp-HA-sub000/internal/log"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/metrics"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/outbox"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/reminder"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/scheduler"
	httptransport "github.com/partner-up-dev/mvp-HA-sub000/internal/transport/http"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/transport/http/handler"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, "jobrunner-server")
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("db connected, schema up to date")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	bus := eventbus.New(logger)
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)

	jobRepo := postgres.NewJobRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	registry := scheduler.NewRegistry()
	reminder.NewHandlers(sender, bus, logger).RegisterAll(registry)

	runner := scheduler.NewRunner(jobRepo, registry, logger)
	scheduleUC := usecase.NewScheduleUsecase(jobRepo)

	writer := outbox.NewWriter(outboxRepo, logger)
	worker := outbox.NewWorker(outboxRepo, logger, outbox.WorkerOptions{
		PollInterval: time.Duration(cfg.OutboxPollSec) * time.Second,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	})
	// Deliver durable events onto the in-process bus for same-process
	// subscribers. Publish never fails, so this handler cannot exhaust an
	// entry's attempts.
	worker.RegisterHandler(func(ctx context.Context, event *domain.DomainEvent) error {
		bus.Publish(ctx, event.Type, event.AggregateType, event.AggregateID, event.Payload)
		return nil
	})

	go worker.Run(ctx)

	tickOpts := scheduler.RunOptions{
		BatchSize:  cfg.RunnerBatchSize,
		MaxBatches: cfg.RunnerMaxBatch,
		Budget:     time.Duration(cfg.RunnerBudgetMS) * time.Millisecond,
		Lease:      time.Duration(cfg.RunnerLeaseMS) * time.Millisecond,
	}
	ticker := scheduler.NewTicker(runner, logger, cfg.TickSchedule, tickOpts)
	go func() {
		if err := ticker.Start(ctx); err != nil {
			logger.Error("tick loop", "error", err)
		}
	}()

	tickHandler := handler.NewTickHandler(runner, writer, logger)
	jobHandler := handler.NewJobHandler(scheduleUC, logger)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, tickHandler, jobHandler, []byte(cfg.JWTSecret)),
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "runner_id", runner.InstanceID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
