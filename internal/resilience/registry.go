package resilience

import (
	"sort"
	"sync"
	"time"
)

// BreakerRegistry owns the per-operation circuit breakers. Breakers are
// created lazily on first use and live for the process lifetime; they can be
// reset on demand but never destroyed.
type BreakerRegistry struct {
	mu       sync.Mutex
	settings BreakerSettings
	now      func() time.Time
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry constructs a registry applying the same settings to every
// operation name.
func NewBreakerRegistry(settings BreakerSettings, now func() time.Time) *BreakerRegistry {
	if now == nil {
		now = time.Now
	}
	return &BreakerRegistry{
		settings: settings,
		now:      now,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the shared breaker for an operation name, creating it on first
// use.
func (r *BreakerRegistry) Get(operation string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if breaker, ok := r.breakers[operation]; ok {
		return breaker
	}
	breaker := newBreaker(operation, r.settings, r.now)
	r.breakers[operation] = breaker
	return breaker
}

// Reset returns a named breaker to Closed. It reports whether the breaker
// existed.
func (r *BreakerRegistry) Reset(operation string) bool {
	r.mu.Lock()
	breaker, ok := r.breakers[operation]
	r.mu.Unlock()
	if !ok {
		return false
	}
	breaker.Reset()
	return true
}

// Snapshots returns read-only views of all breakers sorted by operation name.
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, breaker := range r.breakers {
		breakers = append(breakers, breaker)
	}
	r.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(breakers))
	for _, breaker := range breakers {
		out = append(out, breaker.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
