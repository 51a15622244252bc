// Package health provides a registry of named subsystem health checkers
// backing the readiness probe.
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mbd888/riskgate/internal/circuitbreaker"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers in registration order and returns
// the aggregate health status plus individual subsystem results. A status
// without a name takes the name it was registered under.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		statuses[i] = nc.check(ctx)
		if statuses[i].Name == "" {
			statuses[i].Name = nc.name
		}
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// StateSource reports per-key circuit state.
type StateSource interface {
	Snapshot() map[string]circuitbreaker.State
}

// CircuitChecker reports unhealthy while any downstream circuit is open.
// Half-open circuits are probing and still count as healthy.
func CircuitChecker(src StateSource) Checker {
	return func(_ context.Context) Status {
		snap := src.Snapshot()
		var open []string
		for key, st := range snap {
			if st == circuitbreaker.StateOpen {
				open = append(open, key)
			}
		}
		if len(open) == 0 {
			return Status{Name: "downstream", Healthy: true, Detail: fmt.Sprintf("%d circuits tracked", len(snap))}
		}
		sort.Strings(open)
		return Status{Name: "downstream", Healthy: false, Detail: "circuit open: " + strings.Join(open, ", ")}
	}
}

// RunningChecker reports whether a background worker is running.
func RunningChecker(name string, running func() bool) Checker {
	return func(_ context.Context) Status {
		if running() {
			return Status{Name: name, Healthy: true}
		}
		return Status{Name: name, Healthy: false, Detail: "not running"}
	}
}
