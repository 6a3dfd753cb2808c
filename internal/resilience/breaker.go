package resilience

import (
	"sync"
	"time"

	"vitae/internal/services"
)

// BreakerState enumerates circuit breaker states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerSettings configures one circuit breaker.
type BreakerSettings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	HalfOpenMaxCalls int
}

// CircuitBreaker guards one operation name. All state transitions happen under
// the breaker's own mutex; callers must pair every successful Allow with
// exactly one RecordSuccess or RecordFailure.
type CircuitBreaker struct {
	mu       sync.Mutex
	name     string
	settings BreakerSettings
	now      func() time.Time

	state         BreakerState
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	halfOpenCalls int
}

// BreakerSnapshot is a read-only view of breaker state for monitoring.
type BreakerSnapshot struct {
	Name          string       `json:"name"`
	State         BreakerState `json:"state"`
	FailureCount  int          `json:"failure_count"`
	SuccessCount  int          `json:"success_count"`
	LastFailureAt time.Time    `json:"last_failure_at,omitzero"`
}

func newBreaker(name string, settings BreakerSettings, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		now:      now,
		state:    StateClosed,
	}
}

// Allow reports whether a call may proceed. When the breaker is Open and the
// recovery timeout has elapsed, the call is admitted as a half-open probe.
// A denied call returns a circuit-open tagged error.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailureAt) < b.settings.RecoveryTimeout {
			return services.Wrap(services.ErrCircuitOpen, b.name, "dependency presumed down", nil)
		}
		b.state = StateHalfOpen
		b.successCount = 0
		b.halfOpenCalls = 1
		return nil
	default: // StateHalfOpen
		if b.halfOpenCalls >= b.settings.HalfOpenMaxCalls {
			return services.Wrap(services.ErrCircuitOpen, b.name, "half-open probe budget spent", nil)
		}
		b.halfOpenCalls++
		return nil
	}
}

// RecordSuccess notes a successful call and closes the breaker once enough
// consecutive half-open probes succeed.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.settings.SuccessThreshold {
			b.resetLocked()
		}
	}
}

// RecordFailure notes a failed call. The breaker opens when consecutive
// failures reach the threshold, and a single half-open failure reopens it.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.settings.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successCount = 0
		b.halfOpenCalls = 0
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed with counters cleared.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// Snapshot returns a read-only view of the breaker.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		LastFailureAt: b.lastFailureAt,
	}
}

func (b *CircuitBreaker) resetLocked() {
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCalls = 0
}
