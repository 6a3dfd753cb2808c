package testsupport

import (
	"path/filepath"
	"testing"

	"vitae/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Review.Reviewers = []string{"ana", "ben"}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithReviewers overrides the reviewer pool on the test config.
func WithReviewers(reviewers ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Review.Reviewers = reviewers
	}
}

// WithWorkers sets the worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.Workers = workers
	}
}

// WithQueueCapacity sets the queue capacity on the test config.
func WithQueueCapacity(capacity int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.Capacity = capacity
	}
}
