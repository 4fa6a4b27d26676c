package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/usecase"
)

type fakeJobRepo struct {
	scheduleOnce func(ctx context.Context, job *domain.Job) (*domain.Job, error)
	getByID      func(ctx context.Context, id int64) (*domain.Job, error)
	deletePB     func(ctx context.Context, jobType, key string, prefix bool) (int, error)
}

func (r *fakeJobRepo) ScheduleOnce(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	return r.scheduleOnce(ctx, job)
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	return r.getByID(ctx, id)
}

func (r *fakeJobRepo) DeletePendingByDedupe(ctx context.Context, jobType, key string, prefix bool) (int, error) {
	return r.deletePB(ctx, jobType, key, prefix)
}

func (r *fakeJobRepo) Claim(context.Context, string, int, time.Duration) (*repository.ClaimResult, error) {
	return &repository.ClaimResult{}, nil
}

func (r *fakeJobRepo) MarkSucceeded(context.Context, int64) error { return nil }

func (r *fakeJobRepo) MarkFailed(context.Context, int64, string) error { return nil }

func (r *fakeJobRepo) MarkRetry(context.Context, int64, string, time.Time) error { return nil }

func TestScheduleOnce_AppliesDefaults(t *testing.T) {
	var captured *domain.Job
	repo := &fakeJobRepo{
		scheduleOnce: func(_ context.Context, job *domain.Job) (*domain.Job, error) {
			captured = job
			job.ID = 42
			return job, nil
		},
	}

	result, err := usecase.NewScheduleUsecase(repo).ScheduleOnce(context.Background(), usecase.ScheduleOnceInput{
		JobType: "ping",
		RunAt:   time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Inserted || result.Deduped || result.JobID != 42 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if captured.Payload == nil {
		t.Fatal("payload must default to an empty document")
	}
	if captured.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", captured.MaxAttempts)
	}
	if captured.LateToleranceMS != 60_000 {
		t.Fatalf("expected default late tolerance 60000, got %d", captured.LateToleranceMS)
	}
	if captured.DedupeKey != nil {
		t.Fatal("empty dedupe key must map to nil")
	}
	if captured.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", captured.Status)
	}
}

func TestScheduleOnce_DedupeConflictIsNotAnError(t *testing.T) {
	repo := &fakeJobRepo{
		scheduleOnce: func(context.Context, *domain.Job) (*domain.Job, error) {
			return nil, domain.ErrDuplicateJob
		},
	}

	result, err := usecase.NewScheduleUsecase(repo).ScheduleOnce(context.Background(), usecase.ScheduleOnceInput{
		JobType:   "ping",
		RunAt:     time.Now(),
		DedupeKey: "k1",
	})
	if err != nil {
		t.Fatalf("dedupe conflict must not raise, got %v", err)
	}
	if !result.Deduped || result.Inserted {
		t.Fatalf("expected deduped result, got %+v", result)
	}
}

func TestScheduleOnce_RequiresJobType(t *testing.T) {
	u := usecase.NewScheduleUsecase(&fakeJobRepo{})
	if _, err := u.ScheduleOnce(context.Background(), usecase.ScheduleOnceInput{RunAt: time.Now()}); err == nil {
		t.Fatal("expected error for missing job type")
	}
}

func TestScheduleOnce_PropagatesStoreError(t *testing.T) {
	repo := &fakeJobRepo{
		scheduleOnce: func(context.Context, *domain.Job) (*domain.Job, error) {
			return nil, errors.New("connection refused")
		},
	}
	if _, err := usecase.NewScheduleUsecase(repo).ScheduleOnce(context.Background(), usecase.ScheduleOnceInput{
		JobType: "ping",
		RunAt:   time.Now(),
	}); err == nil {
		t.Fatal("store failures must surface")
	}
}

func TestCancelPending_PassesKeyAndPrefix(t *testing.T) {
	var gotType, gotKey string
	var gotPrefix bool
	repo := &fakeJobRepo{
		deletePB: func(_ context.Context, jobType, key string, prefix bool) (int, error) {
			gotType, gotKey, gotPrefix = jobType, key, prefix
			return 2, nil
		},
	}

	count, err := usecase.NewScheduleUsecase(repo).CancelPending(context.Background(), "partner.reminder", "activity-42:", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 deleted, got %d", count)
	}
	if gotType != "partner.reminder" || gotKey != "activity-42:" || !gotPrefix {
		t.Fatalf("arguments not passed through: %s %s %v", gotType, gotKey, gotPrefix)
	}
}

func TestCancelPending_RequiresKey(t *testing.T) {
	u := usecase.NewScheduleUsecase(&fakeJobRepo{})
	if _, err := u.CancelPending(context.Background(), "partner.reminder", "", false); err == nil {
		t.Fatal("expected error for empty dedupe key")
	}
}
