package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
)

// Writer persists domain events with a delivery marker. Call it within or
// immediately after the business transaction that caused the event; the
// worker guarantees at-least-once delivery from then on.
type Writer struct {
	repo   repository.OutboxRepository
	logger *slog.Logger
}

func NewWriter(repo repository.OutboxRepository, logger *slog.Logger) *Writer {
	return &Writer{repo: repo, logger: logger.With("component", "outbox_writer")}
}

func (w *Writer) Write(ctx context.Context, eventType, aggregateType, aggregateID string, payload domain.Payload) (*domain.DomainEvent, error) {
	if payload == nil {
		payload = domain.Payload{}
	}
	event := &domain.DomainEvent{
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		OccurredAt:    time.Now(),
	}

	created, err := w.repo.Append(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("write to outbox: %w", err)
	}

	w.logger.Debug("event written to outbox",
		"event_id", created.ID,
		"event_type", created.Type,
		"aggregate", created.AggregateType+"/"+created.AggregateID,
	)
	return created, nil
}

// WriteAsync is the fire-and-forget variant for audit-grade events: failures
// are logged and dropped so they can never fail the caller's control flow.
func (w *Writer) WriteAsync(ctx context.Context, eventType, aggregateType, aggregateID string, payload domain.Payload) {
	go func() {
		// Detach from the caller's cancellation; the write should survive
		// the request that spawned it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := w.Write(ctx, eventType, aggregateType, aggregateID, payload); err != nil {
			w.logger.Error("async outbox write dropped", "event_type", eventType, "error", err)
		}
	}()
}
