// Package health provides the liveness and readiness checks served by the
// status server.
package health

import (
	"context"
	"sync"
	"time"
)

// ReadinessChecker is implemented by anything the run depends on being up,
// such as the command runner.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker runs named readiness checks and caches the combined result for
// cacheTTL so frequent probes do not hammer the Docker daemon.
type Checker struct {
	checks   map[string]ReadinessChecker
	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a checker over the given named dependencies. A nil
// entry reports unhealthy as "not configured".
func NewChecker(checks map[string]ReadinessChecker) *Checker {
	return &Checker{
		checks:   checks,
		timeout:  5 * time.Second,
		cacheTTL: time.Second,
		now:      time.Now,
	}
}

// Liveness reports the process is alive. It never touches dependencies.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness runs every check. Any failing check makes the response
// unhealthy.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "run is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && c.now().Sub(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	response := &Response{Status: StatusHealthy, Checks: make(map[string]CheckResult, len(c.checks))}
	if len(c.checks) == 0 {
		response.Status = StatusDegraded
	}
	for name, dep := range c.checks {
		result := c.check(ctx, dep)
		response.Checks[name] = result
		if result.Status != StatusHealthy {
			response.Status = StatusUnhealthy
		}
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = c.now()
	c.mu.Unlock()

	return response
}

func (c *Checker) check(ctx context.Context, dep ReadinessChecker) CheckResult {
	if dep == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := dep.Ready(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SetShuttingDown makes readiness fail from now on.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
