package resilience

import (
	"fmt"
	"strings"
	"time"

	"vitae/internal/config"
)

// Strategy selects how retry delays grow between attempts.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyRandom      Strategy = "random"
)

// ParseStrategy converts a string into a known Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyFixed:
		return StrategyFixed, nil
	case StrategyExponential, "":
		return StrategyExponential, nil
	case StrategyLinear:
		return StrategyLinear, nil
	case StrategyRandom:
		return StrategyRandom, nil
	default:
		return "", fmt.Errorf("retry strategy: unsupported value %q", value)
	}
}

// RetryPolicy bounds the executor's retry loop for one operation.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    Strategy
	Jitter      bool
}

// PolicyFromConfig builds the default retry policy from configuration.
func PolicyFromConfig(cfg *config.Config) (RetryPolicy, error) {
	strategy, err := ParseStrategy(cfg.Retry.Strategy)
	if err != nil {
		return RetryPolicy{}, err
	}
	return RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		Strategy:    strategy,
		Jitter:      cfg.Retry.Jitter,
	}, nil
}

// Delay computes the backoff before the attempt following the given one.
// attempt is 1-based. The rng argument supplies uniform values in [0, 1).
func (p RetryPolicy) Delay(attempt int, rng func() float64) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch p.Strategy {
	case StrategyFixed:
		delay = p.BaseDelay
	case StrategyLinear:
		delay = p.BaseDelay * time.Duration(attempt)
	case StrategyRandom:
		delay = p.BaseDelay
		if rng != nil {
			delay = p.BaseDelay + time.Duration(rng()*float64(p.BaseDelay))
		}
	default: // exponential
		delay = p.BaseDelay
		for i := 1; i < attempt; i++ {
			if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
				delay = p.MaxDelay
				break
			}
			delay *= 2
		}
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && rng != nil {
		delay = time.Duration(float64(delay) * (0.5 + rng()))
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return delay
}
