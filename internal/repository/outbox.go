package repository

import (
	"context"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
)

type OutboxRepository interface {
	// Append inserts the domain event and its pending outbox marker in one
	// transaction.
	Append(ctx context.Context, event *domain.DomainEvent) (*domain.DomainEvent, error)

	// ClaimPending selects up to limit pending entries joined to their
	// events, oldest first, marks them processing and increments attempts.
	// Rows locked by another worker are skipped, not waited on.
	ClaimPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error)

	MarkCompleted(ctx context.Context, entryID int64) error

	// Release returns a processing entry to pending so the next poll retries
	// it from scratch.
	Release(ctx context.Context, entryID int64, lastError string) error

	MarkFailed(ctx context.Context, entryID int64, lastError string) error
}
