// Package health runs the readiness probes of the walletscope backends
// (postgres, redis, the in-memory fallbacks).
package health

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckTimeout bounds a single backend probe.
const CheckTimeout = 2 * time.Second

// Status is the outcome of one probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one backend.
type Checker func(ctx context.Context) Status

// Pinger is a backend with a context-aware liveness probe, such as
// cache.RedisBackend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Registry holds the probes registered by the server during setup.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	checks []Checker
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a probe. The reported status always carries name.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.checks = append(r.checks, check)
}

// CheckAll runs every probe concurrently, each under CheckTimeout, and
// reports statuses in registration order. An empty registry is healthy.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	checks := append([]Checker(nil), r.checks...)
	r.mu.RUnlock()

	statuses := make([]Status, len(checks))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()
			st := checks[i](cctx)
			st.Name = names[i]
			statuses[i] = st
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, st := range statuses {
		healthy = healthy && st.Healthy
	}
	return healthy, statuses
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) Checker {
	return func(ctx context.Context) Status {
		return fromErr(p.Ping(ctx))
	}
}

// DBCheck pings a Postgres pool.
func DBCheck(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		return fromErr(db.PingContext(ctx))
	}
}

// Static always reports healthy with detail, for in-memory backends.
func Static(detail string) Checker {
	return func(context.Context) Status {
		return Status{Healthy: true, Detail: detail}
	}
}

func fromErr(err error) Status {
	if err != nil {
		return Status{Healthy: false, Detail: err.Error()}
	}
	return Status{Healthy: true}
}
