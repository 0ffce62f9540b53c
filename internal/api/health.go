package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// Check returns nil when a dependency is reachable.
type Check func(ctx context.Context) error

// HealthChecker runs named dependency checks for readiness.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	started time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: map[string]Check{}, timeout: 2 * time.Second, started: time.Now()}
}

// Register adds or replaces a check.
func (h *HealthChecker) Register(name string, c Check) {
	h.mu.Lock()
	h.checks[name] = c
	h.mu.Unlock()
}

// Run executes every check concurrently and returns name -> "ok" or
// "unavailable", and whether all passed. Failures are logged, not returned.
func (h *HealthChecker) Run(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, n := range names {
		h.mu.RLock()
		c := h.checks[n]
		h.mu.RUnlock()
		wg.Add(1)
		go func(i int, name string, c Check) {
			defer wg.Done()
			if err := c(ctx); err != nil {
				logger.Warn("health check failed", "check", name, "error", err)
				results[i] = "unavailable"
				return
			}
			results[i] = "ok"
		}(i, n, c)
	}
	wg.Wait()

	out := make(map[string]string, len(names))
	healthy := true
	for i, n := range names {
		out[n] = results[i]
		if results[i] != "ok" {
			healthy = false
		}
	}
	return out, healthy
}

// HealthCheck always answers 200 and reports dependency state.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.health.Run(r.Context())
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	httputil.OK(w, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.health.started).Round(time.Second).String(),
		"checks":    checks,
	})
}

func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "alive"})
}

// Ready answers 503 while any dependency check fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.health.Run(r.Context())
	if !healthy {
		httputil.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not_ready", "checks": checks})
		return
	}
	httputil.OK(w, map[string]interface{}{"status": "ready", "checks": checks})
}
