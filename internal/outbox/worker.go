package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/metrics"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
)

// Handler consumes one delivered domain event. Handlers must be idempotent:
// a failed batch re-runs every handler for the entry, not just the one that
// errored.
type Handler func(ctx context.Context, event *domain.DomainEvent) error

// Worker polls pending outbox entries and delivers them to every registered
// handler in order.
type Worker struct {
	repo         repository.OutboxRepository
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int

	mu       sync.RWMutex
	handlers []Handler
}

type WorkerOptions struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func NewWorker(repo repository.OutboxRepository, logger *slog.Logger, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Worker{
		repo:         repo,
		logger:       logger.With("component", "outbox_worker"),
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
	}
}

func (w *Worker) RegisterHandler(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Run polls until ctx is cancelled. An immediate first pass drains whatever
// accumulated while the process was down.
func (w *Worker) Run(ctx context.Context) {
	if _, err := w.ProcessBatch(ctx); err != nil {
		w.logger.Error("outbox poll failed", "error", err)
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("outbox poll failed", "error", err)
			}
		}
	}
}

// ProcessBatch delivers one batch of pending entries and returns how many
// entries were handled to completion.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.OutboxBatchDuration.Observe(time.Since(start).Seconds())
	}()

	entries, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim pending outbox entries: %w", err)
	}

	processed := 0
	for _, entry := range entries {
		if w.deliver(ctx, entry) {
			processed++
		}
	}
	return processed, nil
}

// deliver runs every handler for the entry. Zero registered handlers is a
// success: there is nothing to fail.
func (w *Worker) deliver(ctx context.Context, entry *domain.OutboxEntry) bool {
	w.mu.RLock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	var deliverErr error
	for _, h := range handlers {
		if err := w.invoke(ctx, h, entry.Event); err != nil {
			deliverErr = err
			break
		}
	}

	if deliverErr == nil {
		if err := w.repo.MarkCompleted(ctx, entry.ID); err != nil {
			w.logger.Error("mark outbox entry completed", "entry_id", entry.ID, "error", err)
		}
		metrics.OutboxProcessedTotal.WithLabelValues("completed").Inc()
		return true
	}

	// Attempts were incremented at claim time.
	if entry.Attempts >= w.maxAttempts {
		if err := w.repo.MarkFailed(ctx, entry.ID, deliverErr.Error()); err != nil {
			w.logger.Error("mark outbox entry failed", "entry_id", entry.ID, "error", err)
		}
		metrics.OutboxProcessedTotal.WithLabelValues("failed").Inc()
		w.logger.Warn("outbox entry permanently failed",
			"entry_id", entry.ID,
			"event_type", entry.Event.Type,
			"attempts", entry.Attempts,
			"error", deliverErr,
		)
		return false
	}

	// Back to pending with no backoff; the next poll retries it.
	if err := w.repo.Release(ctx, entry.ID, deliverErr.Error()); err != nil {
		w.logger.Error("release outbox entry", "entry_id", entry.ID, "error", err)
	}
	metrics.OutboxProcessedTotal.WithLabelValues("retry").Inc()
	w.logger.Warn("outbox delivery failed, will retry",
		"entry_id", entry.ID,
		"event_type", entry.Event.Type,
		"attempt", entry.Attempts,
		"max_attempts", w.maxAttempts,
		"error", deliverErr,
	)
	return false
}

func (w *Worker) invoke(ctx context.Context, h Handler, event *domain.DomainEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("outbox handler panic: %v", p)
		}
	}()
	return h(ctx, event)
}
