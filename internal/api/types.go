// Package api defines the wire types shared by the daemon's HTTP surface and
// the CLI client, plus the client itself.
package api

import (
	"time"

	"vitae/internal/queue"
	"vitae/internal/resilience"
	"vitae/internal/review"
)

// StatusResponse is the daemon-wide snapshot served at /api/status.
type StatusResponse struct {
	Running  bool             `json:"running"`
	Workers  int              `json:"workers"`
	PID      int              `json:"pid"`
	Queue    QueueStats       `json:"queue"`
	Breakers []BreakerStatus  `json:"breakers"`
	Reviews  ReviewStats      `json:"reviews"`
	Executor []FailureSummary `json:"recent_failures,omitempty"`
}

// QueueStats mirrors queue.Stats for JSON transport.
type QueueStats struct {
	Pending            int     `json:"pending"`
	Processing         int     `json:"processing"`
	Retrying           int     `json:"retrying"`
	Completed          int     `json:"completed"`
	Failed             int     `json:"failed"`
	Cancelled          int     `json:"cancelled"`
	AvgProcessingMS    int64   `json:"avg_processing_ms"`
	ThroughputPerHour  float64 `json:"throughput_per_hour"`
	EstimatedDrainSecs int64   `json:"estimated_drain_secs"`
}

// BreakerStatus is one circuit breaker's monitoring snapshot.
type BreakerStatus struct {
	Operation           string `json:"operation"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// ReviewStats mirrors review.Stats for JSON transport.
type ReviewStats struct {
	Pending               int            `json:"pending"`
	Completed             int            `json:"completed"`
	ByStatus              map[string]int `json:"by_status,omitempty"`
	ByType                map[string]int `json:"by_type,omitempty"`
	AutomatedApprovalRate float64        `json:"automated_approval_rate"`
	MeanTimeToDecisionMS  int64          `json:"mean_time_to_decision_ms"`
	MeanQualityScore      float64        `json:"mean_quality_score"`
	ReviewerLoad          map[string]int `json:"reviewer_load,omitempty"`
}

// FailureSummary is one recent executor failure record.
type FailureSummary struct {
	Operation string    `json:"operation"`
	Attempt   int       `json:"attempt"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// ItemSummary is one work item on the wire.
type ItemSummary struct {
	ID          string     `json:"id"`
	SourcePath  string     `json:"source_path"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// QueueListResponse wraps the queue listing.
type QueueListResponse struct {
	Items []ItemSummary `json:"items"`
}

// EnqueueRequest submits a document for processing.
type EnqueueRequest struct {
	SourcePath string `json:"source_path"`
	Priority   string `json:"priority,omitempty"`
}

// EnqueueResponse reports the assigned item ID.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// ReviewSummary is one review item on the wire.
type ReviewSummary struct {
	ID               string    `json:"id"`
	ItemID           string    `json:"item_id"`
	Status           string    `json:"status"`
	Type             string    `json:"type"`
	Score            float64   `json:"score"`
	CriticalIssues   []string  `json:"critical_issues,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
	AssignedReviewer string    `json:"assigned_reviewer,omitempty"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Notes            string    `json:"notes,omitempty"`
}

// ReviewListResponse wraps a review listing.
type ReviewListResponse struct {
	Reviews []ReviewSummary `json:"reviews"`
}

// DecisionRequest submits a manual review decision.
type DecisionRequest struct {
	Reviewer string  `json:"reviewer"`
	Status   string  `json:"status"`
	Notes    string  `json:"notes,omitempty"`
	Score    float64 `json:"score"`
}

// HealthResponse is served at /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromQueueStats converts a queue snapshot to its wire form.
func FromQueueStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Pending:            stats.Pending,
		Processing:         stats.Processing,
		Retrying:           stats.Retrying,
		Completed:          stats.Completed,
		Failed:             stats.Failed,
		Cancelled:          stats.Cancelled,
		AvgProcessingMS:    stats.AvgProcessingTime.Milliseconds(),
		ThroughputPerHour:  stats.ThroughputPerHour,
		EstimatedDrainSecs: int64(stats.EstimatedDrainTime.Seconds()),
	}
}

// FromItem converts a queue item to its wire form.
func FromItem(item queue.Item) ItemSummary {
	summary := ItemSummary{
		ID:         item.ID,
		SourcePath: item.Payload.SourcePath,
		Priority:   item.Priority.String(),
		Status:     string(item.Status),
		RetryCount: item.RetryCount,
		MaxRetries: item.MaxRetries,
		CreatedAt:  item.CreatedAt,
		LastError:  item.LastError,
	}
	if !item.StartedAt.IsZero() {
		started := item.StartedAt
		summary.StartedAt = &started
	}
	if !item.CompletedAt.IsZero() {
		completed := item.CompletedAt
		summary.CompletedAt = &completed
	}
	return summary
}

// FromReviewItem converts a review item to its wire form.
func FromReviewItem(item review.Item) ReviewSummary {
	summary := ReviewSummary{
		ID:               item.ID,
		ItemID:           item.ItemID,
		Status:           string(item.Status),
		Type:             string(item.Type),
		Score:            item.Report.Score,
		CriticalIssues:   item.Report.CriticalIssues,
		Warnings:         item.Report.Warnings,
		AssignedReviewer: item.AssignedReviewer,
		EscalationReason: item.EscalationReason,
		CreatedAt:        item.CreatedAt,
	}
	if item.Decision != nil {
		summary.Notes = item.Decision.Notes
	}
	return summary
}

// FromReviewStats converts review statistics to their wire form.
func FromReviewStats(stats review.Stats) ReviewStats {
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	byType := make(map[string]int, len(stats.ByType))
	for reviewType, count := range stats.ByType {
		byType[string(reviewType)] = count
	}
	return ReviewStats{
		Pending:               stats.PendingCount,
		Completed:             stats.CompletedCount,
		ByStatus:              byStatus,
		ByType:                byType,
		AutomatedApprovalRate: stats.AutomatedApprovalRate,
		MeanTimeToDecisionMS:  stats.MeanTimeToDecision.Milliseconds(),
		MeanQualityScore:      stats.MeanQualityScore,
		ReviewerLoad:          stats.ReviewerLoad,
	}
}

// FromBreakerSnapshot converts a breaker snapshot to its wire form.
func FromBreakerSnapshot(snapshot resilience.BreakerSnapshot) BreakerStatus {
	return BreakerStatus{
		Operation:           snapshot.Name,
		State:               string(snapshot.State),
		ConsecutiveFailures: snapshot.FailureCount,
	}
}
