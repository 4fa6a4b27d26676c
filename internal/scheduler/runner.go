package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/metrics"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
)

// Retry backoff is linear and capped, not exponential: reminder-style jobs
// tolerate lateness poorly, so long exponential tails buy nothing here.
const (
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 10 * time.Minute
)

const (
	defaultBatchSize  = 25
	defaultMaxBatches = 4
	defaultBudget     = 25 * time.Second
	defaultLease      = 60 * time.Second
)

// RunOptions bound one runDueJobs cycle. Zero fields take defaults.
type RunOptions struct {
	// Source tags where the tick came from: "timer", "external-trigger", ...
	Source     string
	BatchSize  int
	MaxBatches int
	// Budget is checked before each batch; a batch already in flight may
	// exceed it rather than being interrupted.
	Budget time.Duration
	// Lease is how long a claimed job is owned before a crashed runner's
	// work becomes reclaimable.
	Lease time.Duration
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Source == "" {
		o.Source = "timer"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = defaultMaxBatches
	}
	if o.Budget <= 0 {
		o.Budget = defaultBudget
	}
	if o.Lease <= 0 {
		o.Lease = defaultLease
	}
	return o
}

// Summary aggregates the outcome of one cycle; per-job errors never
// propagate past it.
type Summary struct {
	Source      string `json:"source"`
	Batches     int    `json:"batches"`
	Claimed     int    `json:"claimed"`
	Succeeded   int    `json:"succeeded"`
	Retried     int    `json:"retried"`
	Failed      int    `json:"failed"`
	Missed      int    `json:"missed"`
	Reclaimed   int    `json:"reclaimed"`
	LockSkipped bool   `json:"lock_skipped"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// Status is the snapshot served by the status endpoint.
type Status struct {
	InstanceID         string     `json:"instance_id"`
	Running            bool       `json:"running"`
	RegisteredJobTypes []string   `json:"registered_job_types"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	LastSummary        *Summary   `json:"last_summary,omitempty"`
}

// Runner drives claim → dispatch → record cycles. One Runner per process;
// construct it at startup and pass it by reference, never as a package-level
// singleton, so tests get fresh instances.
type Runner struct {
	id       string
	repo     repository.JobRepository
	registry *Registry
	logger   *slog.Logger

	// running guards against overlapping cycles within this process; the
	// advisory lock inside Claim covers other processes.
	running atomic.Bool

	mu          sync.Mutex
	lastRunAt   *time.Time
	lastError   string
	lastSummary *Summary
}

func NewRunner(repo repository.JobRepository, registry *Registry, logger *slog.Logger) *Runner {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
	return &Runner{
		id:       id,
		repo:     repo,
		registry: registry,
		logger:   logger.With("component", "runner", "runner_id", id),
	}
}

func (r *Runner) InstanceID() string { return r.id }

func (r *Runner) Registry() *Registry { return r.registry }

// RunDueJobs executes up to MaxBatches claim batches within Budget. A cycle
// already running in this process short-circuits with LockSkipped, as does a
// cycle losing the cross-process advisory lock.
func (r *Runner) RunDueJobs(ctx context.Context, opts RunOptions) (*Summary, error) {
	opts = opts.withDefaults()
	summary := &Summary{Source: opts.Source}

	if !r.running.CompareAndSwap(false, true) {
		summary.LockSkipped = true
		metrics.ClaimLockSkippedTotal.Inc()
		return summary, nil
	}
	defer r.running.Store(false)

	start := time.Now()
	defer func() {
		summary.ElapsedMS = time.Since(start).Milliseconds()
		metrics.TickDuration.WithLabelValues(opts.Source).Observe(time.Since(start).Seconds())
	}()

	for batch := 0; batch < opts.MaxBatches; batch++ {
		if time.Since(start) >= opts.Budget {
			break
		}

		res, err := r.repo.Claim(ctx, r.id, opts.BatchSize, opts.Lease)
		if err != nil {
			err = fmt.Errorf("claim batch: %w", err)
			r.record(summary, err)
			return summary, err
		}

		summary.Reclaimed += res.Reclaimed
		summary.Missed += res.Missed
		metrics.JobsReclaimedTotal.Add(float64(res.Reclaimed))
		metrics.JobsMissedTotal.Add(float64(res.Missed))

		if res.LockSkipped {
			summary.LockSkipped = true
			metrics.ClaimLockSkippedTotal.Inc()
			break
		}
		if len(res.Jobs) == 0 {
			break
		}

		summary.Batches++
		summary.Claimed += len(res.Jobs)
		metrics.JobsClaimedTotal.Add(float64(len(res.Jobs)))

		for _, job := range res.Jobs {
			r.dispatch(ctx, job, opts.Source, summary)
		}
	}

	r.record(summary, nil)

	if summary.Claimed > 0 || summary.Missed > 0 || summary.Reclaimed > 0 {
		r.logger.Info("run complete",
			"source", opts.Source,
			"claimed", summary.Claimed,
			"succeeded", summary.Succeeded,
			"retried", summary.Retried,
			"failed", summary.Failed,
			"missed", summary.Missed,
			"reclaimed", summary.Reclaimed,
		)
	}
	return summary, nil
}

func (r *Runner) dispatch(ctx context.Context, job *domain.Job, source string, summary *Summary) {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	handler, ok := r.registry.Get(job.JobType)
	if !ok {
		// Missing handler is a deploy problem, not a transient one.
		msg := fmt.Sprintf("no handler registered for job type %q", job.JobType)
		r.fail(ctx, job, msg, summary)
		r.logger.Error("unknown job type", "job_id", job.ID, "job_type", job.JobType)
		return
	}

	err := r.invoke(ctx, handler, job, source)
	if err == nil {
		if err := r.repo.MarkSucceeded(ctx, job.ID); err != nil {
			r.logger.Error("mark job succeeded", "job_id", job.ID, "error", err)
		}
		summary.Succeeded++
		metrics.JobsCompletedTotal.WithLabelValues("succeeded").Inc()
		return
	}

	if errors.Is(err, domain.ErrNonRetryable) || job.Attempts >= job.MaxAttempts {
		r.fail(ctx, job, err.Error(), summary)
		r.logger.Warn("job permanently failed",
			"job_id", job.ID, "job_type", job.JobType,
			"attempts", job.Attempts, "error", err,
		)
		return
	}

	retryAt := time.Now().Add(retryDelay(job.Attempts))
	if err := r.repo.MarkRetry(ctx, job.ID, err.Error(), retryAt); err != nil {
		r.logger.Error("mark job retry", "job_id", job.ID, "error", err)
	}
	summary.Retried++
	metrics.JobsCompletedTotal.WithLabelValues("retry").Inc()
	r.logger.Warn("job failed, will retry",
		"job_id", job.ID, "job_type", job.JobType,
		"attempt", job.Attempts, "max_attempts", job.MaxAttempts,
		"retry_at", retryAt, "error", err,
	)
}

func (r *Runner) fail(ctx context.Context, job *domain.Job, msg string, summary *Summary) {
	if err := r.repo.MarkFailed(ctx, job.ID, msg); err != nil {
		r.logger.Error("mark job failed", "job_id", job.ID, "error", err)
	}
	summary.Failed++
	metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
}

// invoke runs the handler with a panic boundary: a panicking handler must
// cost one attempt, not the whole runner.
func (r *Runner) invoke(ctx context.Context, handler HandlerFunc, job *domain.Job, source string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler(ctx, job.Payload, JobContext{
		JobID:    job.ID,
		Attempts: job.Attempts,
		RunAt:    job.RunAt,
		Source:   source,
	})
}

func (r *Runner) record(summary *Summary, runErr error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRunAt = &now
	r.lastSummary = summary
	if runErr != nil {
		r.lastError = runErr.Error()
	} else {
		r.lastError = ""
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		InstanceID:         r.id,
		Running:            r.running.Load(),
		RegisteredJobTypes: r.registry.Names(),
		LastRunAt:          r.lastRunAt,
		LastError:          r.lastError,
		LastSummary:        r.lastSummary,
	}
}

// retryDelay grows linearly with the attempt count and is capped. attempts
// is the post-increment value from the claim, so the first retry waits one
// base delay.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(attempts) * baseRetryDelay
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
