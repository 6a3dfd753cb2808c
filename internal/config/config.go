package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	InboxDir  string `toml:"inbox_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Queue contains configuration for the in-memory work queue.
type Queue struct {
	Capacity       int `toml:"capacity"`
	MaxConcurrent  int `toml:"max_concurrent"`
	MaxRetries     int `toml:"max_retries"`
	RetentionHours int `toml:"retention_hours"`
}

// Retry contains configuration for the resilient executor's retry loop.
type Retry struct {
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelayMS int    `toml:"base_delay_ms"`
	MaxDelayMS  int    `toml:"max_delay_ms"`
	Strategy    string `toml:"strategy"`
	Jitter      bool   `toml:"jitter"`
}

// Breaker contains configuration for per-operation circuit breakers.
type Breaker struct {
	FailureThreshold int `toml:"failure_threshold"`
	RecoverySeconds  int `toml:"recovery_seconds"`
	SuccessThreshold int `toml:"success_threshold"`
	HalfOpenMaxCalls int `toml:"half_open_max_calls"`
}

// Review contains configuration for the quality review gate.
type Review struct {
	MinQualityScore      float64  `toml:"min_quality_score"`
	AutoApproveThreshold float64  `toml:"auto_approve_threshold"`
	EscalationThreshold  float64  `toml:"escalation_threshold"`
	RequireManualReview  bool     `toml:"require_manual_review"`
	Reviewers            []string `toml:"reviewers"`
	ReviewerCapacity     int      `toml:"reviewer_capacity"`
}

// Workflow contains configuration for daemon timing and worker counts.
type Workflow struct {
	Workers            int `toml:"workers"`
	DequeueTimeout     int `toml:"dequeue_timeout"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Reviews        bool   `toml:"reviews"`
	Queue          bool   `toml:"queue"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for vitae.
//
// Configuration sections by subsystem:
//   - Paths: inbox/output/log directories and API bind address
//   - Queue: capacity, concurrency limit, retries, retention
//   - Retry: executor retry attempts, delays, backoff strategy
//   - Breaker: circuit breaker thresholds and recovery timing
//   - Review: quality thresholds and the reviewer pool
//   - Workflow: worker counts and daemon timing
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Retry         Retry         `toml:"retry"`
	Breaker       Breaker       `toml:"breaker"`
	Review        Review        `toml:"review"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vitae/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InboxDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Retry.Strategy = strings.ToLower(strings.TrimSpace(c.Retry.Strategy))
	if c.Retry.Strategy == "" {
		c.Retry.Strategy = defaultRetryStrategy
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	reviewers := make([]string, 0, len(c.Review.Reviewers))
	for _, reviewer := range c.Review.Reviewers {
		if trimmed := strings.TrimSpace(reviewer); trimmed != "" {
			reviewers = append(reviewers, trimmed)
		}
	}
	c.Review.Reviewers = reviewers
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
