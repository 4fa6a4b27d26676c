package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runner metrics

	TickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobrunner",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one runDueJobs cycle, by trigger source.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"source"})

	JobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "jobs_claimed_total",
		Help:      "Total jobs claimed for execution.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "jobs_completed_total",
		Help:      "Total job dispatches finished, by outcome.",
	}, []string{"outcome"})

	JobsReclaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "jobs_reclaimed_total",
		Help:      "Total expired leases returned to retry.",
	})

	JobsMissedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "jobs_missed_total",
		Help:      "Total jobs whose tolerance window elapsed unclaimed.",
	})

	ClaimLockSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "claim_lock_skipped_total",
		Help:      "Claim cycles skipped because another runner held the lock.",
	})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobrunner",
		Name:      "jobs_in_flight",
		Help:      "Number of jobs currently being executed.",
	})

	RunnerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobrunner",
		Name:      "runner_start_time_seconds",
		Help:      "Unix timestamp when the runner started.",
	})

	// Outbox metrics

	OutboxProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "outbox_processed_total",
		Help:      "Total outbox entries processed, by outcome.",
	}, []string{"outcome"})

	OutboxBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobrunner",
		Name:      "outbox_batch_duration_seconds",
		Help:      "Time taken for one outbox poll batch.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobrunner",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobrunner",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		TickDuration,
		JobsClaimedTotal,
		JobsCompletedTotal,
		JobsReclaimedTotal,
		JobsMissedTotal,
		ClaimLockSkippedTotal,
		JobsInFlight,
		RunnerStartTime,
		OutboxProcessedTotal,
		OutboxBatchDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		code := http.StatusOK
		if result.Status != "up" {
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, code int, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(result)
}
