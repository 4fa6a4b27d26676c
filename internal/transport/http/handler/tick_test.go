package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/outbox"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/scheduler"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/transport/http/handler"
)

type fakeJobRepo struct {
	claim        func(ctx context.Context, runnerID string, batchSize int, lease time.Duration) (*repository.ClaimResult, error)
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

func (r *fakeJobRepo) Claim(ctx context.Context, runnerID string, batchSize int, lease time.Duration) (*repository.ClaimResult, error) {
	return r.claim(ctx, runnerID, batchSize, lease)
}

func (r *fakeJobRepo) MarkSucceeded(context.Context, int64) error { return nil }

func (r *fakeJobRepo) MarkFailed(context.Context, int64, string) error { return nil }

func (r *fakeJobRepo) MarkRetry(context.Context, int64, string, time.Time) error { return nil }

type fakeOutboxRepo struct{}

func (r *fakeOutboxRepo) Append(_ context.Context, event *domain.DomainEvent) (*domain.DomainEvent, error) {
	return event, nil
}

func (r *fakeOutboxRepo) ClaimPending(context.Context, int) ([]*domain.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkCompleted(context.Context, int64) error { return nil }

func (r *fakeOutboxRepo) Release(context.Context, int64, string) error { return nil }

func (r *fakeOutboxRepo) MarkFailed(context.Context, int64, string) error { return nil }

func newTickRouter(repo *fakeJobRepo, registry *scheduler.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	runner := scheduler.NewRunner(repo, registry, slog.Default())
	writer := outbox.NewWriter(&fakeOutboxRepo{}, slog.Default())
	h := handler.NewTickHandler(runner, writer, slog.Default())

	r := gin.New()
	r.POST("/scheduler/tick", h.Tick)
	r.GET("/scheduler/status", h.Status)
	return r
}

func TestTick_ReturnsSummary(t *testing.T) {
	job := &domain.Job{
		ID:          1,
		JobType:     "ping",
		Payload:     domain.Payload{},
		RunAt:       time.Now().Add(-10 * time.Second),
		Attempts:    1,
		MaxAttempts: 3,
	}
	claimed := false
	repo := &fakeJobRepo{
		claim: func(context.Context, string, int, time.Duration) (*repository.ClaimResult, error) {
			if claimed {
				return &repository.ClaimResult{}, nil
			}
			claimed = true
			return &repository.ClaimResult{Jobs: []*domain.Job{job}}, nil
		},
	}
	registry := scheduler.NewRegistry()
	registry.Register("ping", func(context.Context, domain.Payload, scheduler.JobContext) error {
		return nil
	})

	router := newTickRouter(repo, registry)

	req := httptest.NewRequest(http.MethodPost, "/scheduler/tick", strings.NewReader(`{"batch_size": 10}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary scheduler.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid summary JSON: %v", err)
	}
	if summary.Source != "external-trigger" {
		t.Fatalf("expected external-trigger source, got %q", summary.Source)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected 1 succeeded, got %+v", summary)
	}
}

func TestTick_EmptyBodyIsAccepted(t *testing.T) {
	repo := &fakeJobRepo{
		claim: func(context.Context, string, int, time.Duration) (*repository.ClaimResult, error) {
			return &repository.ClaimResult{}, nil
		},
	}
	router := newTickRouter(repo, scheduler.NewRegistry())

	req := httptest.NewRequest(http.MethodPost, "/scheduler/tick", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d", rec.Code)
	}
}

func TestTick_StoreFailureIs500(t *testing.T) {
	repo := &fakeJobRepo{
		claim: func(context.Context, string, int, time.Duration) (*repository.ClaimResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	router := newTickRouter(repo, scheduler.NewRegistry())

	req := httptest.NewRequest(http.MethodPost, "/scheduler/tick", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on infrastructure failure, got %d", rec.Code)
	}
}

func TestTick_PerJobFailuresStill200(t *testing.T) {
	job := &domain.Job{ID: 1, JobType: "nobody.handles.this", Payload: domain.Payload{}, Attempts: 1, MaxAttempts: 3}
	claimed := false
	repo := &fakeJobRepo{
		claim: func(context.Context, string, int, time.Duration) (*repository.ClaimResult, error) {
			if claimed {
				return &repository.ClaimResult{}, nil
			}
			claimed = true
			return &repository.ClaimResult{Jobs: []*domain.Job{job}}, nil
		},
	}
	router := newTickRouter(repo, scheduler.NewRegistry())

	req := httptest.NewRequest(http.MethodPost, "/scheduler/tick", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("per-job outcomes must not change the status code, got %d", rec.Code)
	}

	var summary scheduler.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid summary JSON: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected the failure reported in the summary, got %+v", summary)
	}
}

func TestStatus_ReportsInstanceAndJobTypes(t *testing.T) {
	repo := &fakeJobRepo{
		claim: func(context.Context, string, int, time.Duration) (*repository.ClaimResult, error) {
			return &repository.ClaimResult{}, nil
		},
	}
	registry := scheduler.NewRegistry()
	registry.Register("ping", func(context.Context, domain.Payload, scheduler.JobContext) error {
		return nil
	})
	router := newTickRouter(repo, registry)

	req := httptest.NewRequest(http.MethodGet, "/scheduler/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status scheduler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if status.InstanceID == "" {
		t.Fatal("expected a non-empty instance id")
	}
	if status.Running {
		t.Fatal("runner should be idle")
	}
	if len(status.RegisteredJobTypes) != 1 || status.RegisteredJobTypes[0] != "ping" {
		t.Fatalf("expected [ping], got %v", status.RegisteredJobTypes)
	}
}
