package repository

import (
	"context"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
)

// ClaimResult is the outcome of one claim-engine pass.
type ClaimResult struct {
	Jobs []*domain.Job

	// Reclaimed is the number of running jobs whose lease had expired and
	// which were returned to retry.
	Reclaimed int
	// Missed is the number of pending/retry jobs whose late-tolerance
	// deadline had passed and which were moved to the terminal missed state.
	Missed int

	// LockSkipped means another runner held the claim lock; no scan was done.
	LockSkipped bool
}

// The runner depends on the interface, not the pgx implementation, so tests
// can drive it with an in-memory fake.
type JobRepository interface {
	// ScheduleOnce inserts a pending job. Returns domain.ErrDuplicateJob if
	// an active job already holds the same dedupe key.
	ScheduleOnce(ctx context.Context, job *domain.Job) (*domain.Job, error)

	GetByID(ctx context.Context, id int64) (*domain.Job, error)

	// DeletePendingByDedupe removes not-yet-claimed jobs of the given type
	// whose dedupe key equals key, or starts with key when prefix is true.
	// Running jobs are never deleted.
	DeletePendingByDedupe(ctx context.Context, jobType, key string, prefix bool) (int, error)

	// Claim runs the full claim-engine pass in one transaction: advisory
	// lock, lease reclaim, missed sweep, then an atomic batch claim.
	Claim(ctx context.Context, runnerID string, batchSize int, lease time.Duration) (*ClaimResult, error)

	MarkSucceeded(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, lastError string) error
	MarkRetry(ctx context.Context, jobID int64, lastError string, retryAt time.Time) error
}
