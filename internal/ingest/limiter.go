package ingest

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SubPollLimiter rate-limits CLI invocations per rig, one token bucket
// per key, so a misbehaving rig cannot monopolize poll cycles.
//
// Adapted directly from control_plane/scheduler/limiter.go's
// TokenBucketLimiter — same per-key bucket map guarded by a mutex — but
// repurposed from admission-controlling job dispatch to rate-limiting
// sub-poll CLI calls.
type SubPollLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewSubPollLimiter creates a limiter allowing r invocations/second per
// key with the given burst.
func NewSubPollLimiter(r float64, burst int) *SubPollLimiter {
	return &SubPollLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		burst:    burst,
	}
}

// Allow reports whether a sub-poll for key may proceed now.
func (l *SubPollLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[key] = lim
	}
	return lim.Allow()
}

// SubPollCircuitBreaker stops retrying a persistently failing rig's CLI
// calls until a cooldown elapses, then allows a small number of probe
// attempts before fully closing again.
//
// Adapted from control_plane/scheduler/circuit_breaker.go's
// CircuitBreaker: same closed/half-open/open state machine, repurposed
// from "reject incoming jobs under worker saturation" to "stop polling a
// rig whose sub-polls keep failing."
type SubPollCircuitBreaker struct {
	mu sync.Mutex

	state          circuitState
	failureThreshold int
	cooldown       time.Duration
	testLimit      int

	consecutiveFailures int
	openedAt            time.Time
	testCount           int
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

// NewSubPollCircuitBreaker creates a breaker that opens after
// failureThreshold consecutive sub-poll failures and waits cooldown
// before testing recovery.
func NewSubPollCircuitBreaker(failureThreshold int, cooldown time.Duration) *SubPollCircuitBreaker {
	return &SubPollCircuitBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		testLimit:        3,
	}
}

// ShouldAttempt reports whether a sub-poll should run now.
func (cb *SubPollCircuitBreaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen && time.Since(cb.openedAt) > cb.cooldown {
		cb.state = circuitHalfOpen
		cb.testCount = 0
	}

	switch cb.state {
	case circuitOpen:
		return false
	case circuitHalfOpen:
		return cb.testCount < cb.testLimit
	default:
		return true
	}
}

// RecordResult updates the breaker's state with the outcome of the most
// recent sub-poll attempt.
func (cb *SubPollCircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitHalfOpen {
		cb.testCount++
	}

	if success {
		cb.consecutiveFailures = 0
		if cb.state == circuitHalfOpen && cb.testCount >= cb.testLimit {
			cb.state = circuitClosed
		}
		return
	}

	cb.consecutiveFailures++
	if cb.state == circuitHalfOpen {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
		return
	}
	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
	}
}
