package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"vitae/internal/config"
	"vitae/internal/logging"
	"vitae/internal/services"
)

func newTestExecutor(t *testing.T, mutate func(cfg *config.Config), opts ...ExecutorOption) *Executor {
	t.Helper()
	cfg := config.Default()
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelayMS = 10
	cfg.Retry.MaxDelayMS = 100
	cfg.Retry.Jitter = false
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.RecoverySeconds = 60
	if mutate != nil {
		mutate(&cfg)
	}

	opts = append([]ExecutorOption{
		WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
	}, opts...)
	executor, err := NewExecutor(&cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return executor
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	executor := newTestExecutor(t, nil)

	calls := 0
	outcome, err := executor.Execute(context.Background(), "extract", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 || outcome.AttemptsUsed != 1 {
		t.Fatalf("calls=%d attempts=%d", calls, outcome.AttemptsUsed)
	}
	if outcome.Degraded || len(outcome.Attempts) != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	executor := newTestExecutor(t, nil)

	calls := 0
	outcome, err := executor.Execute(context.Background(), "extract", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "extract", "pdf renderer hiccup", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 || outcome.AttemptsUsed != 3 {
		t.Fatalf("calls=%d attempts=%d", calls, outcome.AttemptsUsed)
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("expected 2 failure records, got %d", len(outcome.Attempts))
	}
	for i, record := range outcome.Attempts {
		if record.Attempt != i+1 || record.Operation != "extract" {
			t.Fatalf("record %d: %+v", i, record)
		}
		if record.Kind != services.KindTransient {
			t.Fatalf("record %d kind: %s", i, record.Kind)
		}
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	executor := newTestExecutor(t, nil)

	calls := 0
	outcome, err := executor.Execute(context.Background(), "parse", func(ctx context.Context) error {
		calls++
		return services.Wrap(services.ErrTimeout, "parse", "section matcher stalled", nil)
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if len(outcome.Attempts) != 3 {
		t.Fatalf("expected 3 failure records, got %d", len(outcome.Attempts))
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	executor := newTestExecutor(t, nil)

	calls := 0
	_, err := executor.Execute(context.Background(), "parse", func(ctx context.Context) error {
		calls++
		return services.Wrap(services.ErrPermanent, "parse", "unsupported document format", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", calls)
	}
	if services.Retryable(err) {
		t.Fatal("resulting error should remain non-retryable")
	}
}

func TestExecuteUnknownErrorsAreRetried(t *testing.T) {
	executor := newTestExecutor(t, nil)

	calls := 0
	_, err := executor.Execute(context.Background(), "score", func(ctx context.Context) error {
		calls++
		return errors.New("something odd")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("unclassified errors default to retryable, got %d calls", calls)
	}
}

func TestExecuteFailsFastOnOpenBreaker(t *testing.T) {
	executor := newTestExecutor(t, func(cfg *config.Config) {
		cfg.Breaker.FailureThreshold = 2
		cfg.Retry.MaxAttempts = 1
	})

	boom := services.Wrap(services.ErrTransient, "emit", "webhook refused", nil)
	for i := 0; i < 2; i++ {
		if _, err := executor.Execute(context.Background(), "emit", func(ctx context.Context) error {
			return boom
		}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if state := executor.Breakers().Get("emit").State(); state != StateOpen {
		t.Fatalf("expected open breaker, got %s", state)
	}

	calls := 0
	outcome, err := executor.Execute(context.Background(), "emit", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected circuit-open error")
	}
	if !errors.Is(err, services.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open, got %v", err)
	}
	if calls != 0 {
		t.Fatal("open breaker must not invoke the operation")
	}
	if outcome.AttemptsUsed != 0 {
		t.Fatalf("fail-fast must not consume attempts, got %d", outcome.AttemptsUsed)
	}
}

func TestExecuteOpenBreakerDoesNotAffectOtherOperations(t *testing.T) {
	executor := newTestExecutor(t, func(cfg *config.Config) {
		cfg.Breaker.FailureThreshold = 1
		cfg.Retry.MaxAttempts = 1
	})

	executor.Execute(context.Background(), "emit", func(ctx context.Context) error {
		return services.Wrap(services.ErrTransient, "emit", "down", nil)
	})
	if state := executor.Breakers().Get("emit").State(); state != StateOpen {
		t.Fatalf("expected open emit breaker, got %s", state)
	}

	if _, err := executor.Execute(context.Background(), "extract", func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("independent operation should run: %v", err)
	}
}

func TestExecuteFallbackProducesDegradedResult(t *testing.T) {
	executor := newTestExecutor(t, nil)

	fallbackRan := false
	executor.RegisterFallback("score", func(ctx context.Context) error {
		fallbackRan = true
		return nil
	})

	outcome, err := executor.Execute(context.Background(), "score", func(ctx context.Context) error {
		return services.Wrap(services.ErrTransient, "score", "model endpoint flapping", nil)
	})
	if err != nil {
		t.Fatalf("fallback should absorb the failure: %v", err)
	}
	if !fallbackRan {
		t.Fatal("fallback did not run")
	}
	if !outcome.Degraded {
		t.Fatal("fallback result must be flagged degraded")
	}
	if len(outcome.Attempts) != 3 {
		t.Fatalf("failure records should survive fallback, got %d", len(outcome.Attempts))
	}
}

func TestExecuteFallbackFailurePropagates(t *testing.T) {
	executor := newTestExecutor(t, nil)
	executor.RegisterFallback("score", func(ctx context.Context) error {
		return services.Wrap(services.ErrPermanent, "score", "no cached baseline", nil)
	})

	outcome, err := executor.Execute(context.Background(), "score", func(ctx context.Context) error {
		return services.Wrap(services.ErrTransient, "score", "down", nil)
	})
	if err == nil {
		t.Fatal("failed fallback must propagate an error")
	}
	if outcome.Degraded {
		t.Fatal("failed fallback must not flag degraded")
	}
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected fallback error, got %v", err)
	}
}

func TestExecuteFallbackSkippedOnOpenBreaker(t *testing.T) {
	executor := newTestExecutor(t, func(cfg *config.Config) {
		cfg.Breaker.FailureThreshold = 1
		cfg.Retry.MaxAttempts = 1
	})

	fallbackRan := false
	executor.RegisterFallback("score", func(ctx context.Context) error {
		fallbackRan = true
		return nil
	})

	if _, err := executor.Execute(context.Background(), "score", func(ctx context.Context) error {
		return services.Wrap(services.ErrTransient, "score", "down", nil)
	}); err != nil {
		t.Fatalf("first failure should reach the fallback: %v", err)
	} else if !fallbackRan {
		t.Fatal("fallback should absorb the tripping failure")
	}

	fallbackRan = false
	outcome, err := executor.Execute(context.Background(), "score", func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, services.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open fail-fast, got %v", err)
	}
	if fallbackRan {
		t.Fatal("fallback must not run on a circuit-open fail-fast")
	}
	if outcome.Degraded {
		t.Fatal("circuit-open outcome must not be degraded")
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	executor := newTestExecutor(t, nil, WithSleeper(sleepContext))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	var execErr error
	go func() {
		defer close(done)
		_, execErr = executor.ExecuteWithPolicy(ctx, "extract", RetryPolicy{
			MaxAttempts: 10,
			BaseDelay:   time.Hour,
			Strategy:    StrategyFixed,
		}, func(ctx context.Context) error {
			calls++
			return services.Wrap(services.ErrTransient, "extract", "still down", nil)
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
	if !errors.Is(execErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", execErr)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}

func TestExecuteRepeatedFailuresTripBreakerThenRecover(t *testing.T) {
	clock := newBreakerClock()
	executor := newTestExecutor(t, func(cfg *config.Config) {
		cfg.Breaker.FailureThreshold = 5
		cfg.Breaker.RecoverySeconds = 60
		cfg.Breaker.SuccessThreshold = 1
		cfg.Retry.MaxAttempts = 1
	}, WithExecutorClock(clock.Now))

	failing := func(ctx context.Context) error {
		return services.Wrap(services.ErrTransient, "extract", "renderer crash", nil)
	}
	for i := 0; i < 5; i++ {
		if _, err := executor.Execute(context.Background(), "extract", failing); err == nil {
			t.Fatalf("attempt %d should fail", i)
		}
	}
	if state := executor.Breakers().Get("extract").State(); state != StateOpen {
		t.Fatalf("expected open after 5 failures, got %s", state)
	}

	// Still open before the recovery timeout.
	if _, err := executor.Execute(context.Background(), "extract", func(ctx context.Context) error {
		t.Fatal("operation must not run while open")
		return nil
	}); !errors.Is(err, services.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open, got %v", err)
	}

	clock.Advance(61 * time.Second)
	outcome, err := executor.Execute(context.Background(), "extract", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("half-open probe should run: %v", err)
	}
	if outcome.AttemptsUsed != 1 {
		t.Fatalf("probe attempts: %d", outcome.AttemptsUsed)
	}
	if state := executor.Breakers().Get("extract").State(); state != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", state)
	}
}

func TestHistoryRecordsFailures(t *testing.T) {
	executor := newTestExecutor(t, func(cfg *config.Config) {
		cfg.Retry.MaxAttempts = 2
	})

	executor.Execute(context.Background(), "extract", func(ctx context.Context) error {
		return services.Wrap(services.ErrTransient, "extract", "flaky", nil)
	})
	history := executor.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(history))
	}
	if history[0].Operation != "extract" || history[1].Attempt != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}
}
