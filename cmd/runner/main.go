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
	"github.com/prometheus/client_golang/prometheus"
)

// The headless runner replica: no HTTP API, just the timer loop, the outbox
// poller, and a metrics endpoint. Safe to run alongside any number of
// servers; the advisory lock keeps claim cycles exclusive.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, "jobrunner-runner")
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
	metrics.RunnerStartTime.SetToCurrentTime()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	bus := eventbus.New(logger)
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)

	jobRepo := postgres.NewJobRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	registry := scheduler.NewRegistry()
	reminder.NewHandlers(sender, bus, logger).RegisterAll(registry)

	runner := scheduler.NewRunner(jobRepo, registry, logger)

	worker := outbox.NewWorker(outboxRepo, logger, outbox.WorkerOptions{
		PollInterval: time.Duration(cfg.OutboxPollSec) * time.Second,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	})
	worker.RegisterHandler(func(ctx context.Context, event *domain.DomainEvent) error {
		bus.Publish(ctx, event.Type, event.AggregateType, event.AggregateID, event.Payload)
		return nil
	})
	go worker.Run(ctx)

	ticker := scheduler.NewTicker(runner, logger, cfg.TickSchedule, scheduler.RunOptions{
		BatchSize:  cfg.RunnerBatchSize,
		MaxBatches: cfg.RunnerMaxBatch,
		Budget:     time.Duration(cfg.RunnerBudgetMS) * time.Millisecond,
		Lease:      time.Duration(cfg.RunnerLeaseMS) * time.Millisecond,
	})
	go func() {
		if err := ticker.Start(ctx); err != nil {
			logger.Error("tick loop", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	logger.Info("runner started", "runner_id", runner.InstanceID(), "schedule", cfg.TickSchedule)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("runner shut down")
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
