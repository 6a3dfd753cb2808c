package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vitae/internal/logging"
	"vitae/internal/queue"
	"vitae/internal/review"
	"vitae/internal/services"
)

// archiveTimeout bounds the SQLite writes performed from callbacks.
const archiveTimeout = 5 * time.Second

func (m *Manager) processItem(ctx context.Context, logger *slog.Logger, item queue.Item) {
	ctx = services.WithItemID(ctx, item.ID)
	logger = logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldPriority, item.Priority.String()),
	)
	logger.Info("processing document", logging.String("source_path", item.Payload.SourcePath))

	if m.finishIfCancelled(logger, item.ID) {
		return
	}

	// attempts collects the failure records from every executor call in
	// this pass, so recovered transient errors still land in the item
	// history.
	var attempts []services.ErrorContext

	var text string
	extractOutcome, err := m.executor.Execute(ctx, OpExtract, func(ctx context.Context) error {
		out, extractErr := m.collab.Extractor.Extract(ctx, item.Payload)
		if extractErr != nil {
			return extractErr
		}
		text = out
		return nil
	})
	attempts = append(attempts, extractOutcome.Attempts...)
	if err != nil {
		m.failStep(ctx, logger, item, OpExtract, err, attempts)
		return
	}

	if m.finishIfCancelled(logger, item.ID) {
		return
	}

	var record *Record
	parseOutcome, err := m.executor.Execute(ctx, OpParse, func(ctx context.Context) error {
		parsed, parseErr := m.collab.Parser.Parse(ctx, text)
		if parseErr != nil {
			return parseErr
		}
		record = parsed
		return nil
	})
	attempts = append(attempts, parseOutcome.Attempts...)
	if err != nil {
		m.failStep(ctx, logger, item, OpParse, err, attempts)
		return
	}
	if record == nil {
		record = &Record{}
	}
	record.SourceText = text
	if extractOutcome.Degraded || parseOutcome.Degraded {
		record.Degraded = true
	}

	if m.finishIfCancelled(logger, item.ID) {
		return
	}

	// Scoring is a pure function of the record and is never retried. A
	// scoring failure is a terminal item failure.
	report, err := m.collab.Scorer.Score(ctx, record)
	if err != nil {
		m.completeTerminal(logger, item.ID, services.WithOperation("score", err), attempts)
		return
	}
	if record.Degraded {
		// A substituted result must never slip through automated approval.
		report.CriticalIssues = append(report.CriticalIssues, "result degraded by fallback substitution")
	}
	if similarity, nearDuplicate := m.similar.observe(record.SourceText); nearDuplicate {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("near-duplicate of a recently processed document (similarity %.2f)", similarity))
		logger.Info("near-duplicate document detected", logging.Float64("similarity", similarity))
	}

	m.stashWork(item.ID, record, attempts)
	reviewItem, err := m.gate.Submit(item.ID, report)
	if err != nil {
		m.takeWork(item.ID)
		m.completeTerminal(logger, item.ID, services.WithOperation("review", err), attempts)
		return
	}
	if reviewItem.Final() {
		// Automated decision: the callback already finished the item.
		return
	}

	// Manual or escalated review: release the worker slot and resume from
	// the decision callback. Park can lose the race against a very fast
	// decision, which is fine.
	if err := m.queue.Park(item.ID); err != nil && !errors.Is(err, queue.ErrNotProcessing) {
		logger.Warn("park failed", logging.Error(err))
	}
	switch reviewItem.Status {
	case review.StatusInProgress:
		logger.Info("awaiting manual review",
			logging.String(logging.FieldReviewID, reviewItem.ID),
			logging.String(logging.FieldReviewer, reviewItem.AssignedReviewer),
		)
		if err := m.notifier.NotifyReviewAssigned(ctx, reviewItem.ID, reviewItem.AssignedReviewer); err != nil {
			logger.Debug("review notification failed", logging.Error(err))
		}
	case review.StatusEscalated:
		logger.Warn("awaiting escalated review",
			logging.String(logging.FieldReviewID, reviewItem.ID),
			logging.Float64("score", report.Score),
		)
	}
}

// finishIfCancelled completes a cooperatively cancelled item. Cancellation is
// only observed between pipeline steps, never mid-call.
func (m *Manager) finishIfCancelled(logger *slog.Logger, itemID string) bool {
	if !m.queue.CancelRequested(itemID) {
		return false
	}
	m.takeWork(itemID)
	if _, err := m.queue.Complete(itemID, queue.Outcome{Cancelled: true}); err != nil {
		logger.Warn("cancel completion failed", logging.Error(err))
		return true
	}
	m.metrics.RecordCancelled()
	logger.Info("item cancelled")
	m.archiveItem(itemID)
	return true
}

// failStep reports a step failure to the queue, which decides between a
// scheduled retry and terminal failure. Circuit-open failures stay retryable
// at the queue level so the item re-enters after the recovery window.
func (m *Manager) failStep(ctx context.Context, logger *slog.Logger, item queue.Item, operation string, err error, attempts []services.ErrorContext) {
	kind := services.KindOf(err)
	terminal := !services.Retryable(err) && kind != services.KindCircuitOpen

	status, completeErr := m.queue.Complete(item.ID, queue.Outcome{
		Success:  false,
		Err:      err,
		Terminal: terminal,
		Attempts: attempts,
	})
	if completeErr != nil {
		logger.Error("failure completion failed", logging.Error(completeErr))
		return
	}

	logger.Warn("step failed",
		logging.String(logging.FieldOperation, operation),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String("status", string(status)),
		logging.Error(err),
	)

	if status == queue.StatusFailed {
		m.metrics.RecordFailed()
		if notifyErr := m.notifier.NotifyDocumentFailed(ctx, item.ID, err.Error()); notifyErr != nil {
			logger.Debug("failure notification failed", logging.Error(notifyErr))
		}
		m.archiveItem(item.ID)
		return
	}
	m.metrics.RecordRetry()
}

// completeTerminal marks an item terminally failed regardless of its retry
// budget.
func (m *Manager) completeTerminal(logger *slog.Logger, itemID string, err error, attempts []services.ErrorContext) {
	if _, completeErr := m.queue.Complete(itemID, queue.Outcome{
		Success:  false,
		Err:      err,
		Terminal: true,
		Attempts: attempts,
	}); completeErr != nil {
		logger.Error("terminal completion failed", logging.Error(completeErr))
		return
	}
	m.metrics.RecordFailed()
	logger.Error("item failed terminally", logging.Error(err))
	m.archiveItem(itemID)
}

// handleApproved resumes an approved item: emit the record and complete the
// queue item. It runs on whichever goroutine triggered the decision.
func (m *Manager) handleApproved(reviewItem review.Item) {
	ctx := services.WithItemID(context.Background(), reviewItem.ItemID)
	logger := m.logger.With(
		logging.String(logging.FieldItemID, reviewItem.ItemID),
		logging.String(logging.FieldReviewID, reviewItem.ID),
	)

	// A cancel accepted while the item was parked must win over the
	// approval: emit is a pipeline step, and cancellation is observed
	// between steps.
	if m.finishIfCancelled(logger, reviewItem.ItemID) {
		m.archiveReview(reviewItem)
		return
	}

	work := m.takeWork(reviewItem.ItemID)
	if work.record == nil {
		m.completeTerminal(logger, reviewItem.ItemID, services.Wrap(services.ErrPermanent, OpEmit, "approved record no longer available", nil), nil)
		m.archiveReview(reviewItem)
		return
	}

	var artifact string
	outcome, err := m.executor.Execute(ctx, OpEmit, func(ctx context.Context) error {
		ref, emitErr := m.collab.Emitter.Emit(ctx, work.record)
		if emitErr != nil {
			return emitErr
		}
		artifact = ref
		return nil
	})
	attempts := append(work.attempts, outcome.Attempts...)
	if err != nil {
		// The review decision is already recorded; retrying the whole
		// pipeline would mint a second review item for the same work
		// item, so emit exhaustion is terminal.
		m.completeTerminal(logger, reviewItem.ItemID, err, attempts)
		m.archiveReview(reviewItem)
		return
	}

	if _, completeErr := m.queue.Complete(reviewItem.ItemID, queue.Outcome{
		Success:  true,
		Attempts: attempts,
	}); completeErr != nil {
		logger.Error("success completion failed", logging.Error(completeErr))
		return
	}
	m.recordCompleted(reviewItem.ItemID)
	m.metrics.RecordReviewOutcome(string(review.StatusApproved))
	logger.Info("document approved and emitted",
		logging.String("artifact", artifact),
		logging.Bool("degraded", work.record.Degraded),
	)
	if notifyErr := m.notifier.NotifyDocumentCompleted(ctx, reviewItem.ItemID, artifact); notifyErr != nil {
		logger.Debug("completion notification failed", logging.Error(notifyErr))
	}
	m.archiveItem(reviewItem.ItemID)
	m.archiveReview(reviewItem)
}

func (m *Manager) handleRejected(reviewItem review.Item) {
	m.finishRejected(reviewItem, review.StatusRejected)
}

func (m *Manager) handleNeedsRevision(reviewItem review.Item) {
	m.finishRejected(reviewItem, review.StatusNeedsRevision)
}

// finishRejected ends a rejected or needs-revision item terminally. The
// decision notes stay queryable on the archived review.
func (m *Manager) finishRejected(reviewItem review.Item, outcome review.Status) {
	logger := m.logger.With(
		logging.String(logging.FieldItemID, reviewItem.ItemID),
		logging.String(logging.FieldReviewID, reviewItem.ID),
	)
	work := m.takeWork(reviewItem.ItemID)

	notes := ""
	if reviewItem.Decision != nil {
		notes = reviewItem.Decision.Notes
	}
	err := services.Wrap(services.ErrPermanent, "review", "document "+string(outcome), nil)
	if _, completeErr := m.queue.Complete(reviewItem.ItemID, queue.Outcome{
		Success:  false,
		Err:      err,
		Terminal: true,
		Attempts: work.attempts,
	}); completeErr != nil {
		logger.Error("rejection completion failed", logging.Error(completeErr))
		return
	}
	m.metrics.RecordFailed()
	m.metrics.RecordReviewOutcome(string(outcome))
	logger.Info("document rejected by review",
		logging.String("decision", string(outcome)),
		logging.String("notes", notes),
	)

	ctx := context.Background()
	if notifyErr := m.notifier.NotifyReviewDecided(ctx, reviewItem.ID, string(outcome)); notifyErr != nil {
		logger.Debug("decision notification failed", logging.Error(notifyErr))
	}
	m.archiveItem(reviewItem.ItemID)
	m.archiveReview(reviewItem)
}

// handleEscalated only raises visibility; the item stays parked until a
// supervisor submits the decision.
func (m *Manager) handleEscalated(reviewItem review.Item) {
	logger := m.logger.With(
		logging.String(logging.FieldItemID, reviewItem.ItemID),
		logging.String(logging.FieldReviewID, reviewItem.ID),
	)
	m.metrics.RecordReviewOutcome(string(review.StatusEscalated))
	if err := m.notifier.NotifyReviewEscalated(context.Background(), reviewItem.ID, reviewItem.Report.Score); err != nil {
		logger.Debug("escalation notification failed", logging.Error(err))
	}
}

func (m *Manager) recordCompleted(itemID string) {
	latency := 0.0
	if item, ok := m.queue.Get(itemID); ok && !item.StartedAt.IsZero() && !item.CompletedAt.IsZero() {
		latency = item.CompletedAt.Sub(item.StartedAt).Seconds()
	}
	m.metrics.RecordCompleted(latency)
}

func (m *Manager) archiveItem(itemID string) {
	if m.archive == nil {
		return
	}
	item, ok := m.queue.Get(itemID)
	if !ok || !item.Status.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := m.archive.ArchiveItem(ctx, item); err != nil {
		m.logger.Warn("item archive failed",
			logging.String(logging.FieldItemID, itemID),
			logging.Error(err),
		)
	}
}

func (m *Manager) archiveReview(reviewItem review.Item) {
	if m.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := m.archive.ArchiveReview(ctx, reviewItem); err != nil {
		m.logger.Warn("review archive failed",
			logging.String(logging.FieldReviewID, reviewItem.ID),
			logging.Error(err),
		)
	}
}

// pruneArchive applies the queue retention window to the SQLite archive.
func (m *Manager) pruneArchive(ctx context.Context, retention time.Duration) {
	if m.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	removed, err := m.archive.Prune(ctx, retention)
	if err != nil {
		m.logger.Warn("archive prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Info("archive retention cleanup", logging.Int("removed", int(removed)))
	}
}
