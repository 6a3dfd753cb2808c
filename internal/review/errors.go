package review

import "errors"

var (
	// ErrUnknownReview indicates the review id is not in the pending set.
	ErrUnknownReview = errors.New("review: unknown review id")
	// ErrAlreadyDecided indicates a second decision was submitted for an id.
	ErrAlreadyDecided = errors.New("review: decision already recorded")
	// ErrWrongReviewer indicates the submitting reviewer does not hold the
	// assignment.
	ErrWrongReviewer = errors.New("review: item assigned to another reviewer")
	// ErrInvalidDecision indicates the submitted status is not a decision
	// status.
	ErrInvalidDecision = errors.New("review: status is not a valid decision")
)
