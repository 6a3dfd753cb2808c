package queue

import (
	"errors"
	"fmt"

	"vitae/internal/services"
)

var (
	// ErrClosed is returned once the queue has been shut down.
	ErrClosed = errors.New("queue closed")
	// ErrUnknownItem is returned when an item ID is not tracked.
	ErrUnknownItem = errors.New("unknown queue item")
	// ErrDuplicateItem is returned when a source document is already tracked.
	ErrDuplicateItem = errors.New("item already enqueued")
	// ErrNotProcessing is returned when Complete targets an item no worker holds.
	ErrNotProcessing = errors.New("item not processing")
)

func queueFullError(capacity int) error {
	return services.Wrap(services.ErrQueueFull, "enqueue", fmt.Sprintf("capacity %d reached", capacity), nil)
}

// IsQueueFull reports whether an Enqueue failure was a capacity rejection.
func IsQueueFull(err error) bool {
	return errors.Is(err, services.ErrQueueFull)
}
