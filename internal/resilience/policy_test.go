package resilience

import (
	"testing"
	"time"

	"vitae/internal/config"
)

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		in   string
		want Strategy
		ok   bool
	}{
		{"fixed", StrategyFixed, true},
		{"Exponential", StrategyExponential, true},
		{"  linear ", StrategyLinear, true},
		{"random", StrategyRandom, true},
		{"", StrategyExponential, true},
		{"fibonacci", "", false},
	}
	for _, tc := range cases {
		got, err := ParseStrategy(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseStrategy(%q) error: %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseStrategy(%q) expected error", tc.in)
		}
		if got != tc.want {
			t.Fatalf("ParseStrategy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExponentialDelayDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Strategy:    StrategyExponential,
	}
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, expected := range want {
		got := policy.Delay(i+1, nil)
		if got != expected {
			t.Fatalf("attempt %d: delay %v, want %v", i+1, got, expected)
		}
	}
}

func TestLinearDelayGrowsPerAttempt(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		Strategy:  StrategyLinear,
	}
	if got := policy.Delay(3, nil); got != 300*time.Millisecond {
		t.Fatalf("linear attempt 3: %v", got)
	}
	if got := policy.Delay(50, nil); got != time.Second {
		t.Fatalf("linear delay must cap at max, got %v", got)
	}
}

func TestFixedDelayConstant(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: 250 * time.Millisecond,
		Strategy:  StrategyFixed,
	}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := policy.Delay(attempt, nil); got != 250*time.Millisecond {
			t.Fatalf("fixed attempt %d: %v", attempt, got)
		}
	}
}

func TestRandomDelayStaysWithinRange(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Strategy:  StrategyRandom,
	}
	if got := policy.Delay(1, func() float64 { return 0 }); got != time.Second {
		t.Fatalf("random with rng 0: %v", got)
	}
	if got := policy.Delay(1, func() float64 { return 0.5 }); got != 1500*time.Millisecond {
		t.Fatalf("random with rng 0.5: %v", got)
	}
}

func TestJitterScalesDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
		Strategy:  StrategyFixed,
		Jitter:    true,
	}
	if got := policy.Delay(1, func() float64 { return 0 }); got != 500*time.Millisecond {
		t.Fatalf("jitter lower bound: %v", got)
	}
	if got := policy.Delay(1, func() float64 { return 0.999 }); got >= 1500*time.Millisecond {
		t.Fatalf("jitter upper bound exceeded: %v", got)
	}
}

func TestZeroBaseDelayMeansNoWait(t *testing.T) {
	policy := RetryPolicy{Strategy: StrategyExponential}
	if got := policy.Delay(4, nil); got != 0 {
		t.Fatalf("expected zero delay, got %v", got)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.MaxAttempts = 5
	cfg.Retry.BaseDelayMS = 200
	cfg.Retry.MaxDelayMS = 4000
	cfg.Retry.Strategy = "linear"
	cfg.Retry.Jitter = false

	policy, err := PolicyFromConfig(&cfg)
	if err != nil {
		t.Fatalf("PolicyFromConfig: %v", err)
	}
	if policy.MaxAttempts != 5 {
		t.Fatalf("max attempts: %d", policy.MaxAttempts)
	}
	if policy.BaseDelay != 200*time.Millisecond || policy.MaxDelay != 4*time.Second {
		t.Fatalf("delays: %v / %v", policy.BaseDelay, policy.MaxDelay)
	}
	if policy.Strategy != StrategyLinear || policy.Jitter {
		t.Fatalf("strategy/jitter: %q %v", policy.Strategy, policy.Jitter)
	}

	cfg.Retry.Strategy = "bogus"
	if _, err := PolicyFromConfig(&cfg); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
