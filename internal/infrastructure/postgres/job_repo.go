package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
)

// Advisory lock key for the claim engine. The lock is transaction-scoped and
// non-blocking: whoever fails to get it skips the cycle instead of queuing.
const (
	claimLockNamespace = 7241
	claimLockKey       = 1
)

const jobColumns = `id, job_type, payload, dedupe_key, status, run_at,
	       early_tolerance_ms, late_tolerance_ms, attempts, max_attempts,
	       lease_until, leased_by, last_error, completed_at, created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) ScheduleOnce(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO jobs (
			job_type, payload, dedupe_key, status, run_at,
			early_tolerance_ms, late_tolerance_ms, max_attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + jobColumns

	row := r.pool.QueryRow(ctx, query,
		job.JobType,
		job.Payload,
		job.DedupeKey,
		domain.StatusPending,
		job.RunAt,
		job.EarlyToleranceMS,
		job.LateToleranceMS,
		job.MaxAttempts,
	)

	created, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateJob
		}
		return nil, err
	}
	return created, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// likeEscaper neutralizes LIKE metacharacters in dedupe keys; a key is
// data, never a pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *JobRepository) DeletePendingByDedupe(ctx context.Context, jobType, key string, prefix bool) (int, error) {
	// Running jobs are excluded: in-flight work is allowed to complete.
	match := "dedupe_key = $2"
	arg := key
	if prefix {
		match = "dedupe_key LIKE $2"
		arg = likeEscaper.Replace(key) + "%"
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE job_type  = $1
		  AND status IN ('pending', 'retry')
		  AND `+match, jobType, arg)
	if err != nil {
		return 0, fmt.Errorf("delete pending jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Claim performs the full claim-engine pass inside one transaction:
//
//  1. take the advisory lock, or bail with LockSkipped
//  2. return expired running leases to retry
//  3. sweep pending/retry jobs past their late tolerance into missed
//  4. claim up to batchSize due jobs with FOR UPDATE SKIP LOCKED
//
// Two concurrent claimers can never select the same row even without the
// advisory lock: SKIP LOCKED passes over rows locked by the other claimer.
func (r *JobRepository) Claim(ctx context.Context, runnerID string, batchSize int, lease time.Duration) (*repository.ClaimResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked bool
	if err := tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock($1, $2)`,
		claimLockNamespace, claimLockKey,
	).Scan(&locked); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !locked {
		return &repository.ClaimResult{LockSkipped: true}, nil
	}

	result := &repository.ClaimResult{}

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET    status      = 'retry',
		       lease_until = NULL,
		       leased_by   = NULL,
		       last_error  = 'lease expired before completion',
		       updated_at  = NOW()
		WHERE  status      = 'running'
		  AND  lease_until < NOW()`)
	if err != nil {
		return nil, fmt.Errorf("reclaim expired leases: %w", err)
	}
	result.Reclaimed = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE jobs
		SET    status      = 'missed',
		       lease_until = NULL,
		       leased_by   = NULL,
		       updated_at  = NOW()
		WHERE  status IN ('pending', 'retry')
		  AND  run_at + make_interval(secs => late_tolerance_ms / 1000.0) < NOW()`)
	if err != nil {
		return nil, fmt.Errorf("mark missed jobs: %w", err)
	}
	result.Missed = int(tag.RowsAffected())

	rows, err := tx.Query(ctx, `
		UPDATE jobs
		SET    status      = 'running',
		       attempts    = attempts + 1,
		       lease_until = NOW() + $2::interval,
		       leased_by   = $1,
		       last_error  = NULL,
		       updated_at  = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE  status IN ('pending', 'retry')
			  AND  (lease_until IS NULL OR lease_until < NOW())
			  AND  NOW() >= run_at - make_interval(secs => early_tolerance_ms / 1000.0)
			  AND  NOW() <= run_at + make_interval(secs => late_tolerance_ms / 1000.0)
			ORDER BY run_at ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, runnerID, lease, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result.Jobs = append(result.Jobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	// RETURNING does not preserve the subquery's ORDER BY; restore it so
	// dispatch runs earliest-due first within the batch.
	slices.SortFunc(result.Jobs, func(a, b *domain.Job) int {
		if c := a.RunAt.Compare(b.RunAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return result, nil
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, jobID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status       = 'succeeded',
		       lease_until  = NULL,
		       leased_by    = NULL,
		       completed_at = NOW(),
		       updated_at   = NOW()
		WHERE id = $1`, jobID)
	return err
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID int64, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status      = 'failed',
		       lease_until = NULL,
		       leased_by   = NULL,
		       last_error  = $2,
		       updated_at  = NOW()
		WHERE id = $1`, jobID, lastError)
	return err
}

func (r *JobRepository) MarkRetry(ctx context.Context, jobID int64, lastError string, retryAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status      = 'retry',
		       run_at      = $3,
		       lease_until = NULL,
		       leased_by   = NULL,
		       last_error  = $2,
		       updated_at  = NOW()
		WHERE id = $1`, jobID, lastError, retryAt)
	return err
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.DedupeKey, &j.Status, &j.RunAt,
		&j.EarlyToleranceMS, &j.LateToleranceMS, &j.Attempts, &j.MaxAttempts,
		&j.LeaseUntil, &j.LeasedBy, &j.LastError, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
