package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
)

// Listener receives an event synchronously. Errors are logged and swallowed;
// publication must never fail the business operation that triggered it.
type Listener func(ctx context.Context, event domain.DomainEvent) error

// Bus is a synchronous in-process pub/sub for side effects that do not need
// outbox durability. Construct one at startup and pass it around; no
// package-level singleton.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string][]Listener
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger:    logger.With("component", "event_bus"),
		listeners: make(map[string][]Listener),
	}
}

func (b *Bus) Subscribe(eventType string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], l)
}

// Publish invokes all listeners for the type in subscription order. A
// listener's error or panic does not stop the remaining listeners.
func (b *Bus) Publish(ctx context.Context, eventType, aggregateType, aggregateID string, payload domain.Payload) {
	if payload == nil {
		payload = domain.Payload{}
	}
	event := domain.DomainEvent{
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		OccurredAt:    time.Now(),
	}

	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners[eventType]))
	copy(listeners, b.listeners[eventType])
	b.mu.RUnlock()

	for _, l := range listeners {
		if err := b.invoke(ctx, l, event); err != nil {
			b.logger.Error("event listener failed",
				"event_type", eventType,
				"aggregate", aggregateType+"/"+aggregateID,
				"error", err,
			)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, l Listener, event domain.DomainEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return l(ctx, event)
}
