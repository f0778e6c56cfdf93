package llm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is wrapped by every rejection from CircuitBreaker.Allow.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	// Zero disables the breaker.
	Threshold int
	// ResetAfter is how long an open circuit rejects calls before one probe
	// is let through.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig opens after 5 consecutive failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// BreakerSnapshot is a point-in-time view of a CircuitBreaker.
type BreakerSnapshot struct {
	State               CircuitState
	ConsecutiveFailures int
	// RetryIn is how much longer an open circuit keeps rejecting calls.
	RetryIn time.Duration
}

// CircuitBreaker stops the agents from hammering a provider that keeps failing.
// closed -> open after Threshold consecutive failures, open -> half-open once
// ResetAfter has passed, and the single half-open probe either closes the
// circuit or opens it again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed CircuitBreaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow returns nil when a call may proceed. Rejections wrap ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	if cb.cfg.Threshold <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		wait := cb.retryInLocked()
		if wait > 0 {
			return fmt.Errorf("%w after %d consecutive failures, retry in %v",
				ErrCircuitOpen, cb.failures, wait.Round(time.Second))
		}
		cb.state = CircuitHalfOpen
		return nil
	case CircuitHalfOpen:
		return fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
	default:
		return nil
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failed call. A failed probe reopens the circuit
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || (cb.cfg.Threshold > 0 && cb.failures >= cb.cfg.Threshold) {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// Snapshot returns the current state.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := BreakerSnapshot{State: cb.state, ConsecutiveFailures: cb.failures}
	if cb.state == CircuitOpen {
		snap.RetryIn = max(cb.retryInLocked(), 0)
	}
	return snap
}

func (cb *CircuitBreaker) retryInLocked() time.Duration {
	return cb.cfg.ResetAfter - cb.now().Sub(cb.openedAt)
}
