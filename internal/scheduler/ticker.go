package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Ticker fires RunDueJobs on a cron schedule. Individual job cron
// expressions are not a thing here; the schedule only paces the tick.
type Ticker struct {
	runner *Runner
	logger *slog.Logger
	spec   string
	opts   RunOptions
}

func NewTicker(runner *Runner, logger *slog.Logger, spec string, opts RunOptions) *Ticker {
	return &Ticker{
		runner: runner,
		logger: logger.With("component", "ticker"),
		spec:   spec,
		opts:   opts,
	}
}

// Start blocks until ctx is cancelled and the in-flight tick, if any, has
// finished.
func (t *Ticker) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(t.spec, func() {
		opts := t.opts
		opts.Source = "timer"
		if _, err := t.runner.RunDueJobs(ctx, opts); err != nil {
			t.logger.Error("tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse tick schedule %q: %w", t.spec, err)
	}

	c.Start()
	t.logger.Info("tick loop started", "schedule", t.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	t.logger.Info("tick loop stopped")
	return nil
}
