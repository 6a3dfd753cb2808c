package services

import "time"

// ErrorContext is the immutable record of one failed attempt. Instances are
// appended to per-item history and never mutated afterwards.
type ErrorContext struct {
	Operation  string    `json:"operation"`
	Attempt    int       `json:"attempt"`
	MaxAttempt int       `json:"max_attempt"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
	Degraded   bool      `json:"degraded,omitempty"`
}

// NewErrorContext builds an ErrorContext for a failed attempt.
func NewErrorContext(operation string, attempt, maxAttempt int, err error, at time.Time) ErrorContext {
	ec := ErrorContext{
		Operation:  operation,
		Attempt:    attempt,
		MaxAttempt: maxAttempt,
		Kind:       KindOf(err),
		OccurredAt: at.UTC(),
	}
	if err != nil {
		ec.Message = err.Error()
	}
	return ec
}
