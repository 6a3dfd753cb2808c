package review

import (
	"time"
)

// Status tracks a review item through its lifecycle.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusNeedsRevision Status = "needs_revision"
	StatusEscalated     Status = "escalated"
)

// Decided reports whether the status is one a reviewer may submit as the
// final decision.
func (s Status) Decided() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusNeedsRevision:
		return true
	default:
		return false
	}
}

// Type records how the decision was (or is being) made.
type Type string

const (
	TypeAutomated Type = "automated"
	TypeManual    Type = "manual"
	TypeEscalated Type = "escalated"
)

// QualityReport is the validator's verdict for one processed document. The
// gate consumes it read-only.
type QualityReport struct {
	Score          float64  `json:"score"`
	CriticalIssues []string `json:"critical_issues,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// CriticalIssueCount returns how many blocking issues the validator found.
func (r QualityReport) CriticalIssueCount() int {
	return len(r.CriticalIssues)
}

// Decision is the immutable audit record produced exactly once per review
// item.
type Decision struct {
	ReviewID  string    `json:"review_id"`
	Reviewer  string    `json:"reviewer"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Score     float64   `json:"score"`
	DecidedAt time.Time `json:"decided_at"`
}

// Item is one quality decision in flight or completed. Once a decision is
// recorded the item is immutable; the gate only hands out copies.
type Item struct {
	ID               string        `json:"id"`
	ItemID           string        `json:"item_id"`
	Report           QualityReport `json:"report"`
	Status           Status        `json:"status"`
	Type             Type          `json:"type"`
	AssignedReviewer string        `json:"assigned_reviewer,omitempty"`
	EscalationReason string        `json:"escalation_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	AssignedAt       time.Time     `json:"assigned_at,omitzero"`
	DecidedAt        time.Time     `json:"decided_at,omitzero"`
	Decision         *Decision     `json:"decision,omitempty"`
}

// Final reports whether the item has its decision recorded.
func (i Item) Final() bool {
	return i.Decision != nil
}

// Stats summarizes gate activity for monitoring surfaces.
type Stats struct {
	PendingCount          int            `json:"pending_count"`
	CompletedCount        int            `json:"completed_count"`
	ByStatus              map[Status]int `json:"by_status"`
	ByType                map[Type]int   `json:"by_type"`
	AutomatedApprovalRate float64        `json:"automated_approval_rate"`
	MeanTimeToDecision    time.Duration  `json:"mean_time_to_decision"`
	MeanQualityScore      float64        `json:"mean_quality_score"`
	ReviewerLoad          map[string]int `json:"reviewer_load"`
}
