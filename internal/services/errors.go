package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a failure for retry and routing decisions. The kind is
// carried by the error value itself so classification never depends on the
// concrete type of whatever a collaborator returned.
type ErrorKind string

const (
	KindTransient        ErrorKind = "transient"
	KindPermanent        ErrorKind = "permanent"
	KindTimeout          ErrorKind = "timeout"
	KindRateLimited      ErrorKind = "rate_limited"
	KindCircuitOpen      ErrorKind = "circuit_open"
	KindQueueFull        ErrorKind = "queue_full"
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	KindConfiguration    ErrorKind = "configuration"
	KindUnknown          ErrorKind = "unknown"
)

var (
	ErrTransient        = errors.New("transient failure")
	ErrPermanent        = errors.New("permanent failure")
	ErrTimeout          = errors.New("timeout")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("circuit open")
	ErrQueueFull        = errors.New("queue full")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrConfiguration    = errors.New("configuration error")
)

var markerKinds = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrTimeout, KindTimeout},
	{ErrRateLimited, KindRateLimited},
	{ErrTransient, KindTransient},
	{ErrCircuitOpen, KindCircuitOpen},
	{ErrQueueFull, KindQueueFull},
	{ErrCapacityExceeded, KindCapacityExceeded},
	{ErrConfiguration, KindConfiguration},
	{ErrPermanent, KindPermanent},
}

// Wrap builds an error that includes operation context while tagging it with
// the provided marker for later kind classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf reports the error kind tagged on err, falling back to inspection of
// well-known stdlib error shapes when no marker is present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransient
	}
	return KindUnknown
}

// Retryable reports whether an error kind represents a failure worth retrying.
// Unknown errors are treated as retryable so a missing tag degrades to the
// pre-breaker behaviour rather than dropping work on the first hiccup.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout, KindRateLimited, KindUnknown:
		return true
	default:
		return false
	}
}

// Details captures the structured view of a tagged error for logging.
type ErrorDetails struct {
	Kind      ErrorKind
	Operation string
	Message   string
}

// Details extracts structured error information from a tagged error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	return ErrorDetails{
		Kind:      KindOf(err),
		Operation: operationOf(err),
		Message:   strings.TrimSpace(err.Error()),
	}
}

type operationError struct {
	operation string
	err       error
}

func (e *operationError) Error() string { return e.err.Error() }

func (e *operationError) Unwrap() error { return e.err }

// WithOperation annotates an error with the operation name that produced it.
func WithOperation(operation string, err error) error {
	if err == nil {
		return nil
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return err
	}
	return &operationError{operation: operation, err: err}
}

func operationOf(err error) string {
	var opErr *operationError
	if errors.As(err, &opErr) {
		return opErr.operation
	}
	return ""
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
