package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Append writes the domain event and its pending outbox marker in a single
// transaction so a delivered marker always has an event behind it.
func (r *OutboxRepository) Append(ctx context.Context, event *domain.DomainEvent) (*domain.DomainEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO domain_events (type, aggregate_type, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, type, aggregate_type, aggregate_id, payload, occurred_at`,
		event.Type, event.AggregateType, event.AggregateID, event.Payload, event.OccurredAt)

	var created domain.DomainEvent
	if err := row.Scan(
		&created.ID, &created.Type, &created.AggregateType,
		&created.AggregateID, &created.Payload, &created.OccurredAt,
	); err != nil {
		return nil, fmt.Errorf("insert domain event: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, status) VALUES ($1, 'pending')`,
		created.ID,
	); err != nil {
		return nil, fmt.Errorf("insert outbox marker: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit outbox tx: %w", err)
	}
	return &created, nil
}

// ClaimPending moves up to limit of the oldest pending entries to processing
// and returns them joined to their events. Rows held by a concurrent worker
// are skipped; outbox handlers must be idempotent as the primary safety net.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE outbox_events o
		SET    status            = 'processing',
		       attempts          = o.attempts + 1,
		       last_attempted_at = NOW()
		FROM   domain_events e
		WHERE  e.id = o.event_id
		  AND  o.id IN (
			SELECT id FROM outbox_events
			WHERE  status = 'pending'
			ORDER BY id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING o.id, o.event_id, o.status, o.attempts, o.last_attempted_at,
		          o.completed_at, o.error, o.created_at,
		          e.id, e.type, e.aggregate_type, e.aggregate_id, e.payload, e.occurred_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.OutboxEntry
	for rows.Next() {
		var entry domain.OutboxEntry
		var event domain.DomainEvent
		if err := rows.Scan(
			&entry.ID, &entry.EventID, &entry.Status, &entry.Attempts, &entry.LastAttemptedAt,
			&entry.CompletedAt, &entry.Error, &entry.CreatedAt,
			&event.ID, &event.Type, &event.AggregateType, &event.AggregateID, &event.Payload, &event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.Event = &event
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox entries: %w", err)
	}
	return entries, nil
}

func (r *OutboxRepository) MarkCompleted(ctx context.Context, entryID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET    status       = 'completed',
		       completed_at = NOW(),
		       error        = NULL
		WHERE id = $1`, entryID)
	return err
}

func (r *OutboxRepository) Release(ctx context.Context, entryID int64, lastError string) error {
	// Back to pending, no backoff: the next poll retries it from scratch.
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET    status = 'pending',
		       error  = $2
		WHERE id = $1`, entryID, lastError)
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, entryID int64, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET    status = 'failed',
		       error  = $2
		WHERE id = $1`, entryID, lastError)
	return err
}
