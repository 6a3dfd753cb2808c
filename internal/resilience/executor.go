package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"vitae/internal/config"
	"vitae/internal/logging"
	"vitae/internal/services"
)

const historyLimit = 512

// Fallback converts an exhausted failure into a degraded result. It runs with
// the same context as the original operation.
type Fallback func(ctx context.Context) error

// ExecOutcome reports what one Execute call did.
type ExecOutcome struct {
	AttemptsUsed int
	Degraded     bool
	Attempts     []services.ErrorContext
}

// Executor runs fallible operations with bounded retries behind shared
// per-operation circuit breakers.
type Executor struct {
	breakers *BreakerRegistry
	policy   RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
	rng      func() float64
	sleeper  func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	fallbacks map[string]Fallback
	history   []services.ErrorContext
}

// ExecutorOption customizes executor construction.
type ExecutorOption func(*Executor)

// WithExecutorClock overrides the time source (used in tests).
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleeper overrides how backoff sleeps are performed (used in tests).
func WithSleeper(sleeper func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		if sleeper != nil {
			e.sleeper = sleeper
		}
	}
}

// WithRand overrides the jitter source (used in tests).
func WithRand(rng func() float64) ExecutorOption {
	return func(e *Executor) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// NewExecutor constructs an executor from configuration.
func NewExecutor(cfg *config.Config, logger *slog.Logger, opts ...ExecutorOption) (*Executor, error) {
	policy, err := PolicyFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		policy:    policy,
		logger:    logging.NewComponentLogger(logger, "executor"),
		now:       time.Now,
		rng:       rand.Float64,
		fallbacks: make(map[string]Fallback),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sleeper == nil {
		e.sleeper = sleepContext
	}
	e.breakers = NewBreakerRegistry(BreakerSettings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Breaker.RecoverySeconds) * time.Second,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}, e.now)
	return e, nil
}

// RegisterFallback installs a degraded-result fallback for an operation name.
func (e *Executor) RegisterFallback(operation string, fallback Fallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fallback == nil {
		delete(e.fallbacks, operation)
		return
	}
	e.fallbacks[operation] = fallback
}

// Breakers exposes the registry for monitoring snapshots.
func (e *Executor) Breakers() *BreakerRegistry {
	return e.breakers
}

// History returns a copy of the recent failed-attempt records.
func (e *Executor) History() []services.ErrorContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]services.ErrorContext, len(e.history))
	copy(out, e.history)
	return out
}

// Execute runs fn under the default retry policy.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error) (ExecOutcome, error) {
	return e.ExecuteWithPolicy(ctx, operation, e.policy, fn)
}

// ExecuteWithPolicy runs fn with bounded retries behind the operation's
// circuit breaker. Results are returned through fn's closure; the outcome
// carries the attempt count, the degraded flag, and the per-attempt error
// records for the caller to attach to its work item.
func (e *Executor) ExecuteWithPolicy(ctx context.Context, operation string, policy RetryPolicy, fn func(context.Context) error) (ExecOutcome, error) {
	outcome := ExecOutcome{}
	breaker := e.breakers.Get(operation)
	logger := logging.WithContext(ctx, e.logger)
	opCtx := services.WithOperationName(ctx, operation)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		if err := breaker.Allow(); err != nil {
			// Fail fast without consuming retry attempts.
			lastErr = services.WithOperation(operation, err)
			logger.Debug("circuit open, failing fast",
				logging.String(logging.FieldOperation, operation),
			)
			return e.finish(opCtx, operation, outcome, lastErr)
		}

		outcome.AttemptsUsed = attempt
		err := fn(opCtx)
		if err == nil {
			breaker.RecordSuccess()
			return outcome, nil
		}

		breaker.RecordFailure()
		lastErr = services.WithOperation(operation, err)
		record := services.NewErrorContext(operation, attempt, policy.MaxAttempts, err, e.now())
		outcome.Attempts = append(outcome.Attempts, record)
		e.appendHistory(record)
		logger.Warn("operation attempt failed",
			logging.String(logging.FieldOperation, operation),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", policy.MaxAttempts),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
		)

		if !services.Retryable(err) {
			break
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := e.sleeper(ctx, policy.Delay(attempt, e.rng)); err != nil {
			return outcome, err
		}
	}

	return e.finish(opCtx, operation, outcome, lastErr)
}

// finish applies the operation's fallback, if any, before propagating the
// final error. A successful fallback flags the outcome as degraded so the
// substitution is never silent. Fallbacks apply only after exhausted retries
// or a non-retryable failure; a circuit-open fail-fast propagates unchanged
// so the caller can retry after the recovery window.
func (e *Executor) finish(ctx context.Context, operation string, outcome ExecOutcome, lastErr error) (ExecOutcome, error) {
	if services.KindOf(lastErr) == services.KindCircuitOpen {
		return outcome, lastErr
	}
	e.mu.Lock()
	fallback := e.fallbacks[operation]
	e.mu.Unlock()
	if fallback == nil {
		return outcome, lastErr
	}

	if err := fallback(ctx); err != nil {
		return outcome, services.WithOperation(operation, err)
	}
	outcome.Degraded = true
	logging.WithContext(ctx, e.logger).Info("fallback substituted degraded result",
		logging.String(logging.FieldOperation, operation),
		logging.Error(lastErr),
	)
	return outcome, nil
}

func (e *Executor) appendHistory(record services.ErrorContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, record)
	if len(e.history) > historyLimit {
		e.history = e.history[len(e.history)-historyLimit:]
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
