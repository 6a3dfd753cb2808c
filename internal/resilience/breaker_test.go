package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"vitae/internal/services"
)

type breakerClock struct {
	mu  sync.Mutex
	now time.Time
}

func newBreakerClock() *breakerClock {
	return &breakerClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *breakerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *breakerClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 3,
	}
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	clock := newBreakerClock()
	b := newBreaker("extract", testSettings(), clock.Now)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("closed breaker should allow, got %v", err)
		}
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed below threshold, got %s", b.State())
	}

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open at threshold, got %s", b.State())
	}

	err := b.Allow()
	if err == nil {
		t.Fatal("open breaker should deny calls")
	}
	if !errors.Is(err, services.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
}

func TestBreakerSuccessResetsClosedCount(t *testing.T) {
	clock := newBreakerClock()
	b := newBreaker("extract", testSettings(), clock.Now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("non-consecutive failures should not open the breaker, got %s", b.State())
	}
}

func TestBreakerRecoveryProbeAndClose(t *testing.T) {
	clock := newBreakerClock()
	b := newBreaker("parse", testSettings(), clock.Now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	clock.Advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe after recovery timeout, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("one success should not close (threshold 2), got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("half-open probe denied: %v", err)
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after success threshold, got %s", b.State())
	}

	snap := b.Snapshot()
	if snap.FailureCount != 0 || snap.SuccessCount != 0 {
		t.Fatalf("expected counters reset, got %+v", snap)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newBreakerClock()
	b := newBreaker("parse", testSettings(), clock.Now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe denied: %v", err)
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("half-open failure should reopen, got %s", b.State())
	}
	if err := b.Allow(); err == nil {
		t.Fatal("reopened breaker should deny before timeout")
	}
}

func TestBreakerHalfOpenCallBudget(t *testing.T) {
	clock := newBreakerClock()
	b := newBreaker("emit", testSettings(), clock.Now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d denied: %v", i, err)
		}
	}
	if err := b.Allow(); err == nil {
		t.Fatal("expected probe budget exhaustion")
	}
}

func TestRegistrySharesBreakerPerOperation(t *testing.T) {
	registry := NewBreakerRegistry(testSettings(), nil)
	a := registry.Get("extract")
	b := registry.Get("extract")
	if a != b {
		t.Fatal("expected one shared breaker per operation name")
	}
	if registry.Get("parse") == a {
		t.Fatal("distinct operations must not share breakers")
	}

	snaps := registry.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Name != "extract" || snaps[1].Name != "parse" {
		t.Fatalf("snapshots not sorted: %+v", snaps)
	}
}

func TestRegistryReset(t *testing.T) {
	registry := NewBreakerRegistry(testSettings(), nil)
	b := registry.Get("extract")
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if !registry.Reset("extract") {
		t.Fatal("expected reset to find breaker")
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", b.State())
	}
	if registry.Reset("unknown") {
		t.Fatal("unknown operation should report false")
	}
}
