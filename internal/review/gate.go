package review

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitae/internal/config"
	"vitae/internal/logging"
	"vitae/internal/services"
)

// Callbacks are invoked once per review item when it reaches the matching
// outcome. They run after the gate releases its lock, on the goroutine that
// triggered the transition, and receive a copy of the item.
type Callbacks struct {
	Approved      func(Item)
	Rejected      func(Item)
	NeedsRevision func(Item)
	Escalated     func(Item)
}

// Gate routes quality reports to automated decisions, manual reviewers, or
// escalation, and records one immutable decision per item.
type Gate struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	minQualityScore      float64
	autoApproveThreshold float64
	escalationThreshold  float64
	requireManualReview  bool
	reviewers            []string
	reviewerCapacity     int

	mu        sync.Mutex
	pending   map[string]*Item
	completed map[string]*Item
	loads     map[string]int
	callbacks Callbacks

	automatedTotal    int
	automatedApproved int
	decidedCount      int
	decisionTimeTotal time.Duration
	scoreTotal        float64
	scoreCount        int
}

// GateOption customizes gate construction.
type GateOption func(*Gate)

// WithGateClock overrides the time source (used in tests).
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDGenerator overrides review id generation (used in tests).
func WithIDGenerator(newID func() string) GateOption {
	return func(g *Gate) {
		if newID != nil {
			g.newID = newID
		}
	}
}

// NewGate constructs a gate from configuration.
func NewGate(cfg *config.Config, logger *slog.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		logger:               logging.NewComponentLogger(logger, "review"),
		now:                  time.Now,
		newID:                uuid.NewString,
		minQualityScore:      cfg.Review.MinQualityScore,
		autoApproveThreshold: cfg.Review.AutoApproveThreshold,
		escalationThreshold:  cfg.Review.EscalationThreshold,
		requireManualReview:  cfg.Review.RequireManualReview,
		reviewers:            append([]string(nil), cfg.Review.Reviewers...),
		reviewerCapacity:     cfg.Review.ReviewerCapacity,
		pending:              make(map[string]*Item),
		completed:            make(map[string]*Item),
		loads:                make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetCallbacks installs the outcome callbacks. Call before the first Submit.
func (g *Gate) SetCallbacks(callbacks Callbacks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = callbacks
}

// Submit routes one quality report. Automated outcomes are decided before
// Submit returns; manual items are assigned to the least-loaded reviewer and
// escalated when the pool is exhausted. The returned item is a snapshot.
func (g *Gate) Submit(itemID string, report QualityReport) (Item, error) {
	if report.Score < 0 || report.Score > 1 {
		return Item{}, fmt.Errorf("review: quality score %.3f outside [0, 1]", report.Score)
	}

	g.mu.Lock()
	item := &Item{
		ID:        g.newID(),
		ItemID:    itemID,
		Report:    report,
		Status:    StatusPending,
		CreatedAt: g.now(),
	}
	g.scoreTotal += report.Score
	g.scoreCount++

	var fire func(Item)
	switch {
	case report.Score < g.escalationThreshold:
		// Too poor for ordinary review, skip reviewer assignment entirely.
		fire = g.escalateLocked(item, "score below escalation threshold")
	case report.CriticalIssueCount() > 0:
		fire = g.routeManualLocked(item, "critical issues present")
	case report.Score >= g.autoApproveThreshold:
		fire = g.decideAutomatedLocked(item, StatusApproved, "score above auto-approve threshold")
	case g.requireManualReview:
		fire = g.routeManualLocked(item, "manual review required by policy")
	case report.Score >= g.minQualityScore:
		fire = g.decideAutomatedLocked(item, StatusApproved, "score above minimum")
	default:
		fire = g.decideAutomatedLocked(item, StatusRejected, "score below minimum")
	}
	snapshot := *item
	g.mu.Unlock()

	if fire != nil {
		fire(snapshot)
	}
	return snapshot, nil
}

// SubmitDecision records the final decision for a pending, in-progress, or
// escalated item. The decision is recorded exactly once; a repeat submission
// for the same id is rejected.
func (g *Gate) SubmitDecision(reviewID, reviewer string, status Status, notes string, score float64) (Item, error) {
	if !status.Decided() {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidDecision, status)
	}

	g.mu.Lock()
	item, ok := g.pending[reviewID]
	if !ok {
		if _, done := g.completed[reviewID]; done {
			g.mu.Unlock()
			return Item{}, fmt.Errorf("%w: %s", ErrAlreadyDecided, reviewID)
		}
		g.mu.Unlock()
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownReview, reviewID)
	}
	if item.Status == StatusInProgress && item.AssignedReviewer != reviewer {
		g.mu.Unlock()
		return Item{}, fmt.Errorf("%w: %s belongs to %s", ErrWrongReviewer, reviewID, item.AssignedReviewer)
	}

	fire := g.decideLocked(item, reviewer, status, notes, score)
	snapshot := *item
	g.mu.Unlock()

	g.logger.Info("review decided",
		logging.String(logging.FieldReviewID, snapshot.ID),
		logging.String(logging.FieldItemID, snapshot.ItemID),
		logging.String(logging.FieldReviewer, reviewer),
		logging.String("decision", string(status)),
	)
	if fire != nil {
		fire(snapshot)
	}
	return snapshot, nil
}

// Get returns a snapshot of a review item by id, pending or completed.
func (g *Gate) Get(reviewID string) (Item, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if item, ok := g.pending[reviewID]; ok {
		return *item, true
	}
	if item, ok := g.completed[reviewID]; ok {
		return *item, true
	}
	return Item{}, false
}

// Pending returns snapshots of undecided items ordered by creation time.
func (g *Gate) Pending() []Item {
	g.mu.Lock()
	out := make([]Item, 0, len(g.pending))
	for _, item := range g.pending {
		out = append(out, *item)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Completed returns snapshots of decided items ordered by decision time.
func (g *Gate) Completed() []Item {
	g.mu.Lock()
	out := make([]Item, 0, len(g.completed))
	for _, item := range g.completed {
		out = append(out, *item)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out
}

// Cleanup evicts completed items decided before the retention window. It
// returns the number of evicted items.
func (g *Gate) Cleanup(retention time.Duration) int {
	cutoff := g.now().Add(-retention)
	g.mu.Lock()
	defer g.mu.Unlock()
	evicted := 0
	for id, item := range g.completed {
		if item.DecidedAt.Before(cutoff) {
			delete(g.completed, id)
			evicted++
		}
	}
	return evicted
}

// Statistics returns a snapshot of gate activity.
func (g *Gate) Statistics() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := Stats{
		PendingCount:   len(g.pending),
		CompletedCount: len(g.completed),
		ByStatus:       make(map[Status]int),
		ByType:         make(map[Type]int),
		ReviewerLoad:   make(map[string]int, len(g.reviewers)),
	}
	for _, item := range g.pending {
		stats.ByStatus[item.Status]++
		stats.ByType[item.Type]++
	}
	for _, item := range g.completed {
		stats.ByStatus[item.Status]++
		stats.ByType[item.Type]++
	}
	for _, reviewer := range g.reviewers {
		stats.ReviewerLoad[reviewer] = g.loads[reviewer]
	}
	if g.automatedTotal > 0 {
		stats.AutomatedApprovalRate = float64(g.automatedApproved) / float64(g.automatedTotal)
	}
	if g.decidedCount > 0 {
		stats.MeanTimeToDecision = g.decisionTimeTotal / time.Duration(g.decidedCount)
	}
	if g.scoreCount > 0 {
		stats.MeanQualityScore = g.scoreTotal / float64(g.scoreCount)
	}
	return stats
}

// escalateLocked marks the item escalated. It stays in the pending set until
// someone submits the final decision.
func (g *Gate) escalateLocked(item *Item, reason string) func(Item) {
	item.Status = StatusEscalated
	item.Type = TypeEscalated
	item.EscalationReason = reason
	g.pending[item.ID] = item
	g.logger.Warn("review escalated",
		logging.String(logging.FieldReviewID, item.ID),
		logging.String(logging.FieldItemID, item.ItemID),
		logging.Float64("score", item.Report.Score),
		logging.String("reason", reason),
	)
	return g.callbacks.Escalated
}

// routeManualLocked assigns the least-loaded reviewer with spare capacity, or
// escalates when the pool is exhausted.
func (g *Gate) routeManualLocked(item *Item, reason string) func(Item) {
	item.Type = TypeManual
	reviewer, ok := g.leastLoadedLocked()
	if !ok {
		capacityErr := services.Wrap(services.ErrCapacityExceeded, "review", "reviewer pool exhausted", nil)
		g.logger.Warn("reviewer pool exhausted",
			logging.String(logging.FieldReviewID, item.ID),
			logging.String(logging.FieldErrorKind, string(services.KindOf(capacityErr))),
			logging.Error(capacityErr),
		)
		return g.escalateLocked(item, capacityErr.Error())
	}
	item.Status = StatusInProgress
	item.AssignedReviewer = reviewer
	item.AssignedAt = g.now()
	g.loads[reviewer]++
	g.pending[item.ID] = item
	g.logger.Info("review assigned",
		logging.String(logging.FieldReviewID, item.ID),
		logging.String(logging.FieldItemID, item.ItemID),
		logging.String(logging.FieldReviewer, reviewer),
		logging.String("reason", reason),
	)
	return nil
}

func (g *Gate) leastLoadedLocked() (string, bool) {
	best := ""
	bestLoad := 0
	for _, reviewer := range g.reviewers {
		load := g.loads[reviewer]
		if load >= g.reviewerCapacity {
			continue
		}
		if best == "" || load < bestLoad {
			best = reviewer
			bestLoad = load
		}
	}
	return best, best != ""
}

// decideAutomatedLocked records the system decision and completes the item in
// one step.
func (g *Gate) decideAutomatedLocked(item *Item, status Status, notes string) func(Item) {
	item.Type = TypeAutomated
	g.automatedTotal++
	if status == StatusApproved {
		g.automatedApproved++
	}
	return g.decideLocked(item, "system", status, notes, item.Report.Score)
}

func (g *Gate) decideLocked(item *Item, reviewer string, status Status, notes string, score float64) func(Item) {
	decidedAt := g.now()
	item.Status = status
	item.DecidedAt = decidedAt
	item.Decision = &Decision{
		ReviewID:  item.ID,
		Reviewer:  reviewer,
		Status:    status,
		Notes:     notes,
		Score:     score,
		DecidedAt: decidedAt,
	}
	if item.AssignedReviewer != "" {
		if g.loads[item.AssignedReviewer] > 0 {
			g.loads[item.AssignedReviewer]--
		}
	}
	delete(g.pending, item.ID)
	g.completed[item.ID] = item
	g.decidedCount++
	g.decisionTimeTotal += decidedAt.Sub(item.CreatedAt)

	switch status {
	case StatusApproved:
		return g.callbacks.Approved
	case StatusNeedsRevision:
		if g.callbacks.NeedsRevision != nil {
			return g.callbacks.NeedsRevision
		}
		return g.callbacks.Rejected
	default:
		return g.callbacks.Rejected
	}
}
