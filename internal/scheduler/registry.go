package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
)

// JobContext carries execution metadata alongside the payload.
type JobContext struct {
	JobID    int64
	Attempts int
	RunAt    time.Time
	Source   string
}

// HandlerFunc executes one job. Returning an error wrapped with
// domain.ErrNonRetryable fails the job immediately regardless of attempts.
type HandlerFunc func(ctx context.Context, payload domain.Payload, job JobContext) error

// Registry maps job types to handlers. Safe for concurrent use.
// Re-registering a type overwrites the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

func (r *Registry) Register(jobType string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Names returns the registered job types, sorted for stable status output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
