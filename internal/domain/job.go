package domain

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetry     Status = "retry"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
)

// IsTerminal reports whether a job in this status will never run again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusMissed
}

// Payload is the opaque per-job document handed to the handler verbatim.
type Payload map[string]any

type Job struct {
	ID        int64
	JobType   string
	Payload   Payload
	DedupeKey *string // nil means no deduplication

	Status Status
	RunAt  time.Time

	// Tolerance window around RunAt during which the job may be claimed.
	// Past RunAt + LateToleranceMS the job is marked missed and never runs.
	EarlyToleranceMS int64
	LateToleranceMS  int64

	Attempts    int
	MaxAttempts int

	LeaseUntil *time.Time
	LeasedBy   *string // runner instance holding the lease

	LastError   *string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WindowOpen returns the earliest instant the job may be claimed.
func (j *Job) WindowOpen() time.Time {
	return j.RunAt.Add(-time.Duration(j.EarlyToleranceMS) * time.Millisecond)
}

// WindowClose returns the instant after which the job is missed.
func (j *Job) WindowClose() time.Time {
	return j.RunAt.Add(time.Duration(j.LateToleranceMS) * time.Millisecond)
}
