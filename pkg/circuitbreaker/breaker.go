// Package circuitbreaker stops calling an endpoint after repeated failures
// and probes it again once a cooldown has passed.
//
// States:
//   - Closed: calls allowed
//   - Open: calls rejected until the cooldown elapses
//   - HalfOpen: one probe allowed; its result closes or reopens the breaker
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker. Zero values use defaults.
type Config struct {
	Threshold int              // consecutive failures before opening (default: 3)
	Cooldown  time.Duration    // time open before a probe (default: 5m)
	Now       func() time.Time // clock, default time.Now
}

// Breaker guards a single endpoint.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	b := &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       cfg.Now,
	}
	if b.threshold <= 0 {
		b.threshold = 3
	}
	if b.cooldown <= 0 {
		b.cooldown = 5 * time.Minute
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Allow reports whether a call should be attempted. An open breaker whose
// cooldown has elapsed moves to half-open and allows the probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = HalfOpen
	}
	return true
}

// Record feeds the result of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.state = Closed
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
