package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/infrastructure/postgres"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/repository"
)

// These tests need a real database: the claim engine's sweep, reclaim,
// locking and dedupe guarantees live in SQL, not in Go. Set
// TEST_DATABASE_URL to run them.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, url, "jobrunner-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`TRUNCATE jobs, outbox_events, domain_events RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func insertJob(t *testing.T, pool *pgxpool.Pool, status string, runAt time.Time, lateMS int64, attempts int, leaseUntil *time.Time) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO jobs (job_type, payload, status, run_at, late_tolerance_ms, attempts, lease_until, leased_by)
		VALUES ('ping', '{}', $1, $2, $3, $4, $5, CASE WHEN $5::timestamptz IS NULL THEN NULL ELSE 'dead-runner' END)
		RETURNING id`,
		status, runAt, lateMS, attempts, leaseUntil).Scan(&id)
	if err != nil {
		t.Fatalf("insert job: %v", err)
	}
	return id
}

func jobStatus(t *testing.T, pool *pgxpool.Pool, id int64) string {
	t.Helper()
	var status string
	if err := pool.QueryRow(context.Background(),
		`SELECT status FROM jobs WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("select status: %v", err)
	}
	return status
}

func TestClaim_SweepsMissedAndReclaimsExpiredLeases(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewJobRepository(pool)
	now := time.Now()

	// Past its window: pending, due 10 minutes ago, 1s late tolerance.
	missedID := insertJob(t, pool, "pending", now.Add(-10*time.Minute), 1_000, 0, nil)

	// Crashed runner: running with an expired lease, still inside its window.
	expiredLease := now.Add(-time.Minute)
	staleID := insertJob(t, pool, "running", now.Add(-time.Second), 600_000, 1, &expiredLease)

	res, err := repo.Claim(ctx, "claimer-a", 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Missed != 1 {
		t.Errorf("missed = %d, want 1", res.Missed)
	}
	if res.Reclaimed != 1 {
		t.Errorf("reclaimed = %d, want 1", res.Reclaimed)
	}
	if got := jobStatus(t, pool, missedID); got != "missed" {
		t.Errorf("missed job status = %s, want missed", got)
	}

	// The reclaimed job is due and inside its window, so the same pass
	// claims it again with a fresh attempt and lease.
	if len(res.Jobs) != 1 || res.Jobs[0].ID != staleID {
		t.Fatalf("expected the reclaimed job to be claimed, got %+v", res.Jobs)
	}
	claimed := res.Jobs[0]
	if claimed.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", claimed.Attempts)
	}
	if claimed.LeasedBy == nil || *claimed.LeasedBy != "claimer-a" {
		t.Errorf("leased_by = %v, want claimer-a", claimed.LeasedBy)
	}
	if claimed.LeaseUntil == nil || !claimed.LeaseUntil.After(now) {
		t.Errorf("lease_until = %v, want future", claimed.LeaseUntil)
	}
}

func TestClaim_BatchOrderedByRunAtThenID(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewJobRepository(pool)
	now := time.Now()

	// Insert out of due order on purpose.
	insertJob(t, pool, "pending", now.Add(-1*time.Second), 600_000, 0, nil)
	insertJob(t, pool, "pending", now.Add(-3*time.Second), 600_000, 0, nil)
	insertJob(t, pool, "pending", now.Add(-2*time.Second), 600_000, 0, nil)
	insertJob(t, pool, "pending", now.Add(-3*time.Second), 600_000, 0, nil)

	res, err := repo.Claim(ctx, "claimer-a", 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(res.Jobs) != 4 {
		t.Fatalf("claimed %d jobs, want 4", len(res.Jobs))
	}
	for i := 1; i < len(res.Jobs); i++ {
		prev, cur := res.Jobs[i-1], res.Jobs[i]
		if cur.RunAt.Before(prev.RunAt) {
			t.Fatalf("batch out of run_at order at %d: %v after %v", i, cur.RunAt, prev.RunAt)
		}
		if cur.RunAt.Equal(prev.RunAt) && cur.ID < prev.ID {
			t.Fatalf("batch out of id order at %d: %d after %d", i, cur.ID, prev.ID)
		}
	}
}

func TestClaim_ConcurrentClaimersNeverShareJobs(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewJobRepository(pool)
	now := time.Now()

	const total = 30
	for i := 0; i < total; i++ {
		insertJob(t, pool, "pending", now.Add(-time.Second), 600_000, 0, nil)
	}

	// Each claimer drains in small batches until the store is empty. The
	// advisory lock serializes passes, so a claimer that loses a cycle just
	// tries again.
	drain := func(runnerID string) []int64 {
		var ids []int64
		for i := 0; i < 200; i++ {
			res, err := repo.Claim(ctx, runnerID, 5, time.Minute)
			if err != nil {
				t.Errorf("claim %s: %v", runnerID, err)
				return ids
			}
			if res.LockSkipped {
				continue
			}
			if len(res.Jobs) == 0 {
				return ids
			}
			for _, j := range res.Jobs {
				ids = append(ids, j.ID)
			}
		}
		t.Errorf("claimer %s never drained", runnerID)
		return ids
	}

	var wg sync.WaitGroup
	results := make([][]int64, 2)
	for i, runnerID := range []string{"claimer-a", "claimer-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = drain(runnerID)
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool, total)
	claimed := 0
	for _, ids := range results {
		for _, id := range ids {
			if seen[id] {
				t.Fatalf("job %d claimed by both runners", id)
			}
			seen[id] = true
			claimed++
		}
	}
	if claimed != total {
		t.Errorf("claimed %d jobs total, want %d", claimed, total)
	}
}

func TestScheduleOnce_DedupeEnforcedByIndex(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewJobRepository(pool)

	key := "act-42:u-1"
	job := func() *domain.Job {
		return &domain.Job{
			JobType:         "ping",
			Payload:         domain.Payload{},
			Status:          domain.StatusPending,
			RunAt:           time.Now().Add(time.Minute),
			LateToleranceMS: 60_000,
			MaxAttempts:     3,
			DedupeKey:       &key,
		}
	}

	first, err := repo.ScheduleOnce(ctx, job())
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}

	if _, err := repo.ScheduleOnce(ctx, job()); !errors.Is(err, domain.ErrDuplicateJob) {
		t.Fatalf("second schedule: got %v, want ErrDuplicateJob", err)
	}

	// A terminal job releases the key: the index only covers active statuses.
	if err := repo.MarkSucceeded(ctx, first.ID); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := repo.ScheduleOnce(ctx, job()); err != nil {
		t.Fatalf("reschedule after completion: %v", err)
	}
}

func TestDeletePendingByDedupe_PrefixTreatsKeyAsLiteral(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewJobRepository(pool)

	schedule := func(key string) {
		t.Helper()
		k := key
		_, err := repo.ScheduleOnce(ctx, &domain.Job{
			JobType:         "ping",
			Payload:         domain.Payload{},
			Status:          domain.StatusPending,
			RunAt:           time.Now().Add(time.Minute),
			LateToleranceMS: 60_000,
			MaxAttempts:     3,
			DedupeKey:       &k,
		})
		if err != nil {
			t.Fatalf("schedule %s: %v", key, err)
		}
	}
	schedule("a_b:1")
	schedule("axb:2")

	// "_" in the key must not act as a single-character wildcard.
	count, err := repo.DeletePendingByDedupe(ctx, "ping", "a_b", true)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count != 1 {
		t.Fatalf("deleted %d jobs, want 1", count)
	}

	var remaining string
	if err := pool.QueryRow(ctx,
		`SELECT dedupe_key FROM jobs WHERE status = 'pending'`).Scan(&remaining); err != nil {
		t.Fatalf("select remaining: %v", err)
	}
	if remaining != "axb:2" {
		t.Errorf("remaining key = %s, want axb:2", remaining)
	}
}

var _ repository.JobRepository = (*postgres.JobRepository)(nil)
