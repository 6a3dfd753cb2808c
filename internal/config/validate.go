package config

import (
	"errors"
	"fmt"
)

var validStrategies = map[string]struct{}{
	"fixed":       {},
	"exponential": {},
	"linear":      {},
	"random":      {},
}

// Validate ensures the configuration is usable. Invalid thresholds and zero
// capacities fail here, at construction time, never mid-pipeline.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateBreaker(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}
	if c.Queue.MaxConcurrent <= 0 {
		return errors.New("queue.max_concurrent must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return errors.New("queue.max_retries must not be negative")
	}
	if c.Queue.RetentionHours <= 0 {
		return errors.New("queue.retention_hours must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelayMS < 0 {
		return errors.New("retry.base_delay_ms must not be negative")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be at least retry.base_delay_ms")
	}
	if _, ok := validStrategies[c.Retry.Strategy]; !ok {
		return fmt.Errorf("retry.strategy: unsupported value %q", c.Retry.Strategy)
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if c.Breaker.FailureThreshold <= 0 {
		return errors.New("breaker.failure_threshold must be positive")
	}
	if c.Breaker.RecoverySeconds <= 0 {
		return errors.New("breaker.recovery_seconds must be positive")
	}
	if c.Breaker.SuccessThreshold <= 0 {
		return errors.New("breaker.success_threshold must be positive")
	}
	if c.Breaker.HalfOpenMaxCalls < c.Breaker.SuccessThreshold {
		return errors.New("breaker.half_open_max_calls must be at least breaker.success_threshold")
	}
	return nil
}

func (c *Config) validateReview() error {
	for name, value := range map[string]float64{
		"review.min_quality_score":      c.Review.MinQualityScore,
		"review.auto_approve_threshold": c.Review.AutoApproveThreshold,
		"review.escalation_threshold":   c.Review.EscalationThreshold,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.Review.EscalationThreshold > c.Review.MinQualityScore {
		return errors.New("review.escalation_threshold must not exceed review.min_quality_score")
	}
	if c.Review.MinQualityScore > c.Review.AutoApproveThreshold {
		return errors.New("review.min_quality_score must not exceed review.auto_approve_threshold")
	}
	if c.Review.ReviewerCapacity <= 0 {
		return errors.New("review.reviewer_capacity must be positive")
	}
	seen := make(map[string]struct{}, len(c.Review.Reviewers))
	for _, reviewer := range c.Review.Reviewers {
		if _, dup := seen[reviewer]; dup {
			return fmt.Errorf("review.reviewers: duplicate entry %q", reviewer)
		}
		seen[reviewer] = struct{}{}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.DequeueTimeout <= 0 {
		return errors.New("workflow.dequeue_timeout must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}
