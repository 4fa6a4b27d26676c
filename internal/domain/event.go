package domain

import (
	"time"
)

// DomainEvent is an immutable fact recorded by a business use-case.
// Written once, never mutated; retained indefinitely for audit.
type DomainEvent struct {
	ID            int64
	Type          string
	AggregateType string
	AggregateID   string
	Payload       Payload
	OccurredAt    time.Time
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEntry is the durable delivery marker for a DomainEvent. A pending
// entry means the event has not yet been handed to every outbox handler.
type OutboxEntry struct {
	ID              int64
	EventID         int64
	Status          OutboxStatus
	Attempts        int
	LastAttemptedAt *time.Time
	CompletedAt     *time.Time
	Error           *string
	CreatedAt       time.Time

	// Event is the joined domain event, populated when entries are claimed
	// for processing.
	Event *DomainEvent
}
