package queue

import (
	"strings"
	"time"

	"vitae/internal/services"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the item's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Priority orders work items; lower values are served first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

var priorityNames = map[Priority]string{
	PriorityCritical:   "critical",
	PriorityHigh:       "high",
	PriorityNormal:     "normal",
	PriorityLow:        "low",
	PriorityBackground: "background",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "normal"
}

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for priority, name := range priorityNames {
		if name == normalized {
			return priority, true
		}
	}
	return PriorityNormal, false
}

// Payload references the external document a work item processes.
type Payload struct {
	SourcePath  string
	Fingerprint string
}

// Item is one unit of work tracked by the queue. The queue owns the canonical
// record; workers receive copies.
type Item struct {
	ID          string
	Payload     Payload
	Priority    Priority
	Status      Status
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	DueAt       time.Time
	LastError   string
	History     []services.ErrorContext

	seq             uint64
	parked          bool
	cancelRequested bool
}

// Outcome reports the result of processing one dequeued item.
type Outcome struct {
	Success        bool
	Err            error
	Terminal       bool
	Cancelled      bool
	ProcessingTime time.Duration
	Attempts       []services.ErrorContext
}

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	Pending            int
	Processing         int
	Retrying           int
	Completed          int
	Failed             int
	Cancelled          int
	AvgProcessingTime  time.Duration
	ThroughputPerHour  float64
	EstimatedDrainTime time.Duration
}

// Active returns the number of items still moving through the pipeline.
func (s Stats) Active() int {
	return s.Pending + s.Processing + s.Retrying
}
