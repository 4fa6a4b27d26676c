// Package health answers liveness and readiness probes for the server
// and runner binaries.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const probeTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// CheckResult is the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level probe response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type namedProbe struct {
	name  string
	probe Probe
}

// Checker runs registered dependency probes. Probes are added during
// startup wiring and never after, so no locking is needed.
type Checker struct {
	probes []namedProbe
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

func NewChecker(db Pinger, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jobrunner",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	c := &Checker{
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
	c.Add("postgres", db.Ping)
	return c
}

// Add registers an extra readiness probe under name.
func (c *Checker) Add(name string, probe Probe) {
	c.probes = append(c.probes, namedProbe{name: name, probe: probe})
}

// Liveness reports that the process is running. It never touches
// dependencies, so a broken database cannot get the pod restarted.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness runs every probe and reports per-dependency status. Any
// failing probe marks the whole result down.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult, len(c.probes)),
	}

	for _, p := range c.probes {
		if err := p.probe(probeCtx); err != nil {
			c.logger.Warn("health check failed", "dependency", p.name, "error", err)
			result.Status = "down"
			result.Checks[p.name] = CheckResult{Status: "down", Error: err.Error()}
			c.gauge.WithLabelValues(p.name).Set(0)
			continue
		}
		result.Checks[p.name] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues(p.name).Set(1)
	}

	return result
}
