package queue

import (
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"vitae/internal/config"
	"vitae/internal/services"
)

// Queue is the shared priority work queue. All mutation happens under a single
// mutex; Dequeue blocks on the paired condition variable until an item is due
// or the timeout elapses.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity      int
	maxConcurrent int
	maxRetries    int
	retention     time.Duration
	retryBase     time.Duration
	retryMax      time.Duration
	jitter        bool

	now func() time.Time
	rng func() float64

	seq        uint64
	items      map[string]*Item
	ready      readyHeap
	delayed    delayedHeap
	processing int
	parked     int
	closed     bool

	completed       int
	failed          int
	cancelled       int
	evicted         int
	totalProcessing time.Duration
	openedAt        time.Time
}

// Option customizes queue construction.
type Option func(*Queue)

// WithClock overrides the queue's time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithJitter toggles retry backoff jitter.
func WithJitter(enabled bool) Option {
	return func(q *Queue) {
		q.jitter = enabled
	}
}

// New constructs a queue from configuration.
func New(cfg *config.Config, opts ...Option) *Queue {
	q := &Queue{
		capacity:      cfg.Queue.Capacity,
		maxConcurrent: cfg.Queue.MaxConcurrent,
		maxRetries:    cfg.Queue.MaxRetries,
		retention:     time.Duration(cfg.Queue.RetentionHours) * time.Hour,
		retryBase:     time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		retryMax:      time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		jitter:        cfg.Retry.Jitter,
		now:           time.Now,
		rng:           rand.Float64,
		items:         make(map[string]*Item),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.cond = sync.NewCond(&q.mu)
	q.openedAt = q.now()
	return q
}

// ItemID derives the stable work item identifier from the payload's source
// identity. The same document always maps to the same ID.
func ItemID(payload Payload) string {
	identity := strings.TrimSpace(payload.Fingerprint)
	if identity == "" {
		identity = strings.TrimSpace(payload.SourcePath)
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:16]
}

// Enqueue adds a new work item and wakes one waiting worker. It rejects with a
// queue-full error when active items have reached capacity, and with
// ErrDuplicateItem when the document is already tracked.
func (q *Queue) Enqueue(payload Payload, priority Priority) (string, error) {
	if strings.TrimSpace(payload.SourcePath) == "" {
		return "", services.Wrap(services.ErrPermanent, "enqueue", "payload source path required", nil)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}
	id := ItemID(payload)
	if existing, ok := q.items[id]; ok && !existing.Status.IsTerminal() {
		return id, fmt.Errorf("%w: %s", ErrDuplicateItem, id)
	}
	if q.activeLocked() >= q.capacity {
		return "", queueFullError(q.capacity)
	}

	q.seq++
	item := &Item{
		ID:         id,
		Payload:    payload,
		Priority:   priority,
		Status:     StatusPending,
		MaxRetries: q.maxRetries,
		CreatedAt:  q.now(),
		seq:        q.seq,
	}
	q.items[id] = item
	heap.Push(&q.ready, item)
	q.cond.Signal()
	return id, nil
}

// Dequeue blocks until an item is due and a processing slot is free, or the
// timeout elapses. A non-positive timeout makes the call non-blocking. The
// returned item is a snapshot owned exclusively by the caller until Complete.
func (q *Queue) Dequeue(timeout time.Duration) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	deadline := q.now().Add(timeout)
	for {
		if q.closed {
			return Item{}, false
		}
		q.promoteDueLocked()
		if q.processing < q.maxConcurrent && q.ready.Len() > 0 {
			item := heap.Pop(&q.ready).(*Item)
			item.Status = StatusProcessing
			item.StartedAt = q.now()
			item.DueAt = time.Time{}
			q.processing++
			return snapshot(item), true
		}

		remaining := deadline.Sub(q.now())
		if remaining <= 0 {
			return Item{}, false
		}
		if next := q.nextDueLocked(); !next.IsZero() {
			if until := next.Sub(q.now()); until > 0 && until < remaining {
				remaining = until
			}
		}
		q.timedWaitLocked(remaining)
	}
}

// Complete reports the outcome of a dequeued (or parked) item and applies the
// resulting transition: success and cancellation are terminal, failures either
// schedule a retry or land in the failed set once the retry budget is spent.
// The resolved status is returned.
func (q *Queue) Complete(id string, outcome Outcome) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if item.Status != StatusProcessing {
		return item.Status, fmt.Errorf("%w: %s is %s", ErrNotProcessing, id, item.Status)
	}
	q.releaseSlotLocked(item)

	duration := outcome.ProcessingTime
	if duration <= 0 && !item.StartedAt.IsZero() {
		duration = q.now().Sub(item.StartedAt)
	}
	if len(outcome.Attempts) > 0 {
		item.History = append(item.History, outcome.Attempts...)
	}

	switch {
	case outcome.Cancelled:
		item.Status = StatusCancelled
		item.CompletedAt = q.now()
		q.cancelled++
	case outcome.Success:
		item.Status = StatusCompleted
		item.CompletedAt = q.now()
		item.LastError = ""
		q.completed++
		q.totalProcessing += duration
	default:
		if outcome.Err != nil {
			item.LastError = outcome.Err.Error()
		}
		if outcome.Terminal || item.RetryCount >= item.MaxRetries {
			item.Status = StatusFailed
			item.CompletedAt = q.now()
			q.failed++
		} else {
			item.RetryCount++
			item.Status = StatusRetrying
			item.DueAt = q.now().Add(q.backoff(item.RetryCount))
			heap.Push(&q.delayed, item)
		}
	}

	q.cond.Broadcast()
	return item.Status, nil
}

// Park releases the processing slot held by an item that is waiting on an
// external decision (manual review). The item stays in Processing status and
// remains invisible to Dequeue; a later Complete call finishes it.
func (q *Queue) Park(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if item.Status != StatusProcessing {
		return fmt.Errorf("%w: %s is %s", ErrNotProcessing, id, item.Status)
	}
	if item.parked {
		return nil
	}
	item.parked = true
	q.processing--
	q.parked++
	q.cond.Broadcast()
	return nil
}

// Cancel removes a pending or retrying item outright, or requests cooperative
// cancellation of a processing item. It reports whether the request took
// effect.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok || item.Status.IsTerminal() {
		return false
	}
	switch item.Status {
	case StatusPending:
		removeFromReady(&q.ready, id)
	case StatusRetrying:
		if !removeFromDelayed(&q.delayed, id) {
			removeFromReady(&q.ready, id)
		}
	case StatusProcessing:
		item.cancelRequested = true
		return true
	default:
		return false
	}
	item.Status = StatusCancelled
	item.CompletedAt = q.now()
	q.cancelled++
	q.cond.Broadcast()
	return true
}

// CancelRequested reports whether a cooperative cancel is pending for the item.
func (q *Queue) CancelRequested(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	return ok && item.cancelRequested
}

// Get returns a snapshot of a tracked item.
func (q *Queue) Get(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return Item{}, false
	}
	return snapshot(item), true
}

// Items returns snapshots of all tracked items ordered by creation time.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, snapshot(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].seq < out[j].seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cleanup evicts terminal items older than the retention window and returns
// the number removed.
func (q *Queue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-q.retention)
	removed := 0
	for id, item := range q.items {
		if item.Status.IsTerminal() && !item.CompletedAt.IsZero() && item.CompletedAt.Before(cutoff) {
			delete(q.items, id)
			removed++
		}
	}
	q.evicted += removed
	return removed
}

// Statistics returns a point-in-time activity snapshot.
func (q *Queue) Statistics() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Processing: q.processing + q.parked,
		Completed:  q.completed,
		Failed:     q.failed,
		Cancelled:  q.cancelled,
	}
	for _, item := range q.items {
		switch item.Status {
		case StatusPending:
			stats.Pending++
		case StatusRetrying:
			stats.Retrying++
		}
	}
	if q.completed > 0 {
		stats.AvgProcessingTime = q.totalProcessing / time.Duration(q.completed)
		elapsed := q.now().Sub(q.openedAt)
		if elapsed > 0 {
			stats.ThroughputPerHour = float64(q.completed) / elapsed.Hours()
		}
		backlog := stats.Pending + stats.Retrying + stats.Processing
		if q.maxConcurrent > 0 {
			stats.EstimatedDrainTime = stats.AvgProcessingTime * time.Duration((backlog+q.maxConcurrent-1)/q.maxConcurrent)
		}
	}
	return stats
}

// Close shuts the queue down and wakes all blocked Dequeue calls.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue) activeLocked() int {
	return q.ready.Len() + q.delayed.Len() + q.processing + q.parked
}

func (q *Queue) releaseSlotLocked(item *Item) {
	if item.parked {
		item.parked = false
		q.parked--
		return
	}
	q.processing--
}

func (q *Queue) promoteDueLocked() {
	now := q.now()
	for q.delayed.Len() > 0 {
		next := q.delayed[0]
		if next.DueAt.After(now) {
			return
		}
		heap.Pop(&q.delayed)
		heap.Push(&q.ready, next)
	}
}

func (q *Queue) nextDueLocked() time.Time {
	if q.delayed.Len() == 0 {
		return time.Time{}
	}
	return q.delayed[0].DueAt
}

// timedWaitLocked waits on the condition variable for at most d. A one-shot
// timer broadcasts so the wait cannot outlive the deadline.
func (q *Queue) timedWaitLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	q.cond.Wait()
	timer.Stop()
}

// backoff computes the retry delay for the given retry count: exponential with
// an upper cap, optionally jittered by a uniform factor in [0.5, 1.5).
func (q *Queue) backoff(retryCount int) time.Duration {
	if q.retryBase <= 0 {
		return 0
	}
	delay := q.retryBase
	for i := 1; i < retryCount; i++ {
		if delay > q.retryMax/2 {
			delay = q.retryMax
			break
		}
		delay *= 2
	}
	if delay > q.retryMax {
		delay = q.retryMax
	}
	if q.jitter {
		delay = time.Duration(float64(delay) * (0.5 + q.rng()))
		if delay > q.retryMax {
			delay = q.retryMax
		}
	}
	return delay
}

func snapshot(item *Item) Item {
	cp := *item
	if len(item.History) > 0 {
		cp.History = make([]services.ErrorContext, len(item.History))
		copy(cp.History, item.History)
	}
	return cp
}
