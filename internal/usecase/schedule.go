package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
)

const (
	defaultLateToleranceMS = 60_000
	defaultMaxAttempts     = 3
)

type ScheduleUsecase struct {
	repo repository.JobRepository
}

func NewScheduleUsecase(repo repository.JobRepository) *ScheduleUsecase {
	return &ScheduleUsecase{repo: repo}
}

type ScheduleOnceInput struct {
	JobType string
	RunAt   time.Time
	Payload domain.Payload

	// Tolerance overrides; LateToleranceMS of zero takes the default window.
	EarlyToleranceMS int64
	LateToleranceMS  int64

	MaxAttempts int
	DedupeKey   string // empty means no deduplication
}

type ScheduleOnceResult struct {
	Inserted bool  `json:"inserted"`
	Deduped  bool  `json:"deduped"`
	JobID    int64 `json:"job_id,omitempty"`
}

// ScheduleOnce inserts one pending job. A dedupe-key collision with another
// active job is not an error: the call reports deduped instead, so repeated
// or concurrent scheduling of the same logical key is idempotent.
func (u *ScheduleUsecase) ScheduleOnce(ctx context.Context, input ScheduleOnceInput) (*ScheduleOnceResult, error) {
	if input.JobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	if input.Payload == nil {
		input.Payload = domain.Payload{}
	}
	if input.LateToleranceMS == 0 {
		input.LateToleranceMS = defaultLateToleranceMS
	}
	if input.MaxAttempts == 0 {
		input.MaxAttempts = defaultMaxAttempts
	}

	job := &domain.Job{
		JobType:          input.JobType,
		Payload:          input.Payload,
		Status:           domain.StatusPending,
		RunAt:            input.RunAt,
		EarlyToleranceMS: input.EarlyToleranceMS,
		LateToleranceMS:  input.LateToleranceMS,
		MaxAttempts:      input.MaxAttempts,
	}
	if input.DedupeKey != "" {
		job.DedupeKey = &input.DedupeKey
	}

	created, err := u.repo.ScheduleOnce(ctx, job)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			return &ScheduleOnceResult{Deduped: true}, nil
		}
		return nil, fmt.Errorf("schedule job: %w", err)
	}

	return &ScheduleOnceResult{Inserted: true, JobID: created.ID}, nil
}

// CancelPending deletes not-yet-claimed jobs by dedupe key or key prefix.
// Running jobs are left alone: in-flight work completes.
func (u *ScheduleUsecase) CancelPending(ctx context.Context, jobType, dedupeKey string, prefix bool) (int, error) {
	if jobType == "" || dedupeKey == "" {
		return 0, fmt.Errorf("job type and dedupe key are required")
	}
	count, err := u.repo.DeletePendingByDedupe(ctx, jobType, dedupeKey, prefix)
	if err != nil {
		return 0, fmt.Errorf("cancel pending jobs: %w", err)
	}
	return count, nil
}

func (u *ScheduleUsecase) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
