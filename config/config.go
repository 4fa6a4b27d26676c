package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Runner tunables; the tick schedule paces the internal timer loop.
	TickSchedule    string `env:"TICK_SCHEDULE" envDefault:"@every 30s" validate:"required"`
	RunnerBatchSize int    `env:"RUNNER_BATCH_SIZE" envDefault:"25" validate:"min=1,max=500"`
	RunnerMaxBatch  int    `env:"RUNNER_MAX_BATCHES" envDefault:"4" validate:"min=1,max=100"`
	RunnerBudgetMS  int    `env:"RUNNER_BUDGET_MS" envDefault:"25000" validate:"min=100"`
	RunnerLeaseMS   int    `env:"RUNNER_LEASE_MS" envDefault:"60000" validate:"min=1000"`

	OutboxPollSec     int `env:"OUTBOX_POLL_SEC" envDefault:"5" validate:"min=1,max=300"`
	OutboxBatchSize   int `env:"OUTBOX_BATCH_SIZE" envDefault:"20" validate:"min=1,max=500"`
	OutboxMaxAttempts int `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"5" validate:"min=1,max=50"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret    string `env:"JWT_SECRET,required" validate:"required,min=32"`
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
