package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"vitae/internal/config"
	"vitae/internal/logging"
	"vitae/internal/queue"
	"vitae/internal/resilience"
	"vitae/internal/review"
	"vitae/internal/services"
	"vitae/internal/testsupport"
)

type stubExtractor struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	text     string
}

func (s *stubExtractor) Extract(ctx context.Context, payload queue.Payload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures != 0 && (s.failures < 0 || s.calls <= s.failures) {
		if s.err != nil {
			return "", s.err
		}
		return "", services.Wrap(services.ErrTransient, OpExtract, "renderer hiccup", nil)
	}
	if s.text == "" {
		return "resume text for " + payload.SourcePath, nil
	}
	return s.text, nil
}

func (s *stubExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubParser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubParser) Parse(ctx context.Context, text string) (*Record, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &Record{
		Name:   "Jordan Reyes",
		Email:  "jordan@example.com",
		Skills: []string{"Go", "SQL"},
	}, nil
}

type stubScorer struct {
	report review.QualityReport
	err    error
}

func (s *stubScorer) Score(ctx context.Context, record *Record) (review.QualityReport, error) {
	if s.err != nil {
		return review.QualityReport{}, s.err
	}
	return s.report, nil
}

type stubEmitter struct {
	mu    sync.Mutex
	calls int
	err   error
	last  *Record
}

func (s *stubEmitter) Emit(ctx context.Context, record *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = record
	if s.err != nil {
		return "", s.err
	}
	return "/output/artifact.json", nil
}

func (s *stubEmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	cfg       *config.Config
	queue     *queue.Queue
	gate      *review.Gate
	executor  *resilience.Executor
	manager   *Manager
	extractor *stubExtractor
	parser    *stubParser
	scorer    *stubScorer
	emitter   *stubEmitter
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Retry.BaseDelayMS = 1
	cfg.Retry.MaxDelayMS = 5
	cfg.Retry.Jitter = false
	cfg.Workflow.DequeueTimeout = 1
	if mutate != nil {
		mutate(cfg)
	}

	f := &fixture{
		cfg:       cfg,
		queue:     queue.New(cfg),
		gate:      review.NewGate(cfg, logging.NewNop()),
		extractor: &stubExtractor{},
		parser:    &stubParser{},
		scorer:    &stubScorer{report: review.QualityReport{Score: 0.96}},
		emitter:   &stubEmitter{},
	}

	executor, err := resilience.NewExecutor(cfg, logging.NewNop(),
		resilience.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	f.executor = executor

	manager, err := NewManager(cfg, f.queue, f.gate, executor, Collaborators{
		Extractor: f.extractor,
		Parser:    f.parser,
		Scorer:    f.scorer,
		Emitter:   f.emitter,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.manager = manager
	return f
}

// runOne dequeues the next due item and drives it through the pipeline on the
// calling goroutine.
func (f *fixture) runOne(t *testing.T) queue.Item {
	t.Helper()
	item, ok := f.queue.Dequeue(0)
	if !ok {
		t.Fatal("expected a due item")
	}
	f.manager.processItem(context.Background(), logging.NewNop(), item)
	return item
}

func (f *fixture) enqueue(t *testing.T, path string, priority queue.Priority) string {
	t.Helper()
	id, err := f.manager.Enqueue(context.Background(), queue.Payload{SourcePath: path}, priority)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := queue.New(cfg)
	gate := review.NewGate(cfg, logging.NewNop())
	executor, err := resilience.NewExecutor(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	_, err = NewManager(cfg, q, gate, executor, Collaborators{}, logging.NewNop())
	if err == nil {
		t.Fatal("expected configuration error for missing collaborators")
	}
	if services.KindOf(err) != services.KindConfiguration {
		t.Fatalf("expected configuration kind, got %s", services.KindOf(err))
	}
}

func TestTransientExtractionFailuresRecoverAndAutoApprove(t *testing.T) {
	f := newFixture(t, nil)
	f.extractor.failures = 2

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityHigh)
	f.runOne(t)

	item, ok := f.queue.Get(id)
	if !ok {
		t.Fatal("item missing")
	}
	if item.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (last error %q)", item.Status, item.LastError)
	}
	if f.extractor.callCount() != 3 {
		t.Fatalf("expected 3 extraction attempts, got %d", f.extractor.callCount())
	}
	if f.emitter.callCount() != 1 {
		t.Fatalf("expected 1 emit, got %d", f.emitter.callCount())
	}
	if len(item.History) != 2 {
		t.Fatalf("expected 2 error records on item, got %d", len(item.History))
	}

	completed := f.gate.Completed()
	if len(completed) != 1 {
		t.Fatalf("expected 1 decided review, got %d", len(completed))
	}
	if completed[0].Type != review.TypeAutomated || completed[0].Status != review.StatusApproved {
		t.Fatalf("expected automated approval, got %s/%s", completed[0].Status, completed[0].Type)
	}

	if state := f.executor.Breakers().Get(OpExtract).State(); state != resilience.StateClosed {
		t.Fatalf("failures below threshold must leave breaker closed, got %s", state)
	}
}

func TestRepeatedExtractionFailuresOpenBreakerAndFailFast(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Retry.MaxAttempts = 1
		cfg.Breaker.FailureThreshold = 5
		cfg.Queue.MaxRetries = 0
	})
	f.extractor.failures = -1

	for i := 0; i < 5; i++ {
		f.enqueue(t, fmt.Sprintf("/inbox/doc-%d.pdf", i), queue.PriorityNormal)
		f.runOne(t)
	}
	if f.extractor.callCount() != 5 {
		t.Fatalf("expected 5 extraction calls, got %d", f.extractor.callCount())
	}
	if state := f.executor.Breakers().Get(OpExtract).State(); state != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %s", state)
	}

	id := f.enqueue(t, "/inbox/blocked.pdf", queue.PriorityNormal)
	f.runOne(t)

	if f.extractor.callCount() != 5 {
		t.Fatal("open breaker must not invoke the extraction collaborator")
	}
	item, _ := f.queue.Get(id)
	if !strings.Contains(item.LastError, "circuit open") {
		t.Fatalf("expected circuit-open failure, got %q", item.LastError)
	}
}

func TestCircuitOpenFailureStaysRetryable(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Retry.MaxAttempts = 1
		cfg.Breaker.FailureThreshold = 1
		cfg.Queue.MaxRetries = 3
	})
	f.extractor.failures = -1

	f.enqueue(t, "/inbox/first.pdf", queue.PriorityNormal)
	f.runOne(t)

	id := f.enqueue(t, "/inbox/second.pdf", queue.PriorityNormal)
	f.runOne(t)

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusRetrying {
		t.Fatalf("circuit-open failure should schedule a retry, got %s", item.Status)
	}
}

func TestPermanentParseFailureIsTerminal(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.MaxRetries = 3
	})
	f.parser.err = services.Wrap(services.ErrPermanent, OpParse, "unsupported document format", nil)

	id := f.enqueue(t, "/inbox/broken.bin", queue.PriorityNormal)
	f.runOne(t)

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusFailed {
		t.Fatalf("expected terminal failure, got %s", item.Status)
	}
	if item.RetryCount != 0 {
		t.Fatalf("permanent failure must not consume the retry budget, got %d", item.RetryCount)
	}
}

func TestRetryBudgetExhaustionEndsFailed(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Retry.MaxAttempts = 1
		cfg.Queue.MaxRetries = 2
		cfg.Retry.BaseDelayMS = 0
		cfg.Breaker.FailureThreshold = 100
	})
	f.extractor.failures = -1

	id := f.enqueue(t, "/inbox/flaky.pdf", queue.PriorityNormal)
	deadline := time.Now().Add(2 * time.Second)
	for {
		item, _ := f.queue.Get(id)
		if item.Status.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("item never became terminal, status %s", item.Status)
		}
		if next, ok := f.queue.Dequeue(10 * time.Millisecond); ok {
			f.manager.processItem(context.Background(), logging.NewNop(), next)
		}
	}

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed after retry exhaustion, got %s", item.Status)
	}
	if item.RetryCount != 2 {
		t.Fatalf("retry count: %d", item.RetryCount)
	}
}

func TestManualReviewParksItemAndResumesOnApproval(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.report = review.QualityReport{
		Score:          0.80,
		CriticalIssues: []string{"dates overlap"},
	}

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityNormal)
	f.runOne(t)

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusProcessing {
		t.Fatalf("parked item should stay processing, got %s", item.Status)
	}
	if f.emitter.callCount() != 0 {
		t.Fatal("emit must wait for the decision")
	}

	pending := f.gate.Pending()
	if len(pending) != 1 || pending[0].Status != review.StatusInProgress {
		t.Fatalf("expected one in-progress review, got %+v", pending)
	}

	if _, err := f.gate.SubmitDecision(pending[0].ID, pending[0].AssignedReviewer, review.StatusApproved, "looks right", 0.85); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}

	item, _ = f.queue.Get(id)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after approval, got %s", item.Status)
	}
	if f.emitter.callCount() != 1 {
		t.Fatalf("expected emit after approval, got %d", f.emitter.callCount())
	}
}

func TestManualRejectionEndsTerminally(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.report = review.QualityReport{
		Score:          0.80,
		CriticalIssues: []string{"identity unverifiable"},
	}

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityNormal)
	f.runOne(t)

	pending := f.gate.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected pending review, got %d", len(pending))
	}
	if _, err := f.gate.SubmitDecision(pending[0].ID, pending[0].AssignedReviewer, review.StatusRejected, "cannot verify", 0.3); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed after rejection, got %s", item.Status)
	}
	if !strings.Contains(item.LastError, "rejected") {
		t.Fatalf("last error should carry the rejection, got %q", item.LastError)
	}
	if f.emitter.callCount() != 0 {
		t.Fatal("rejected records must not be emitted")
	}
}

func TestEscalatedReviewAwaitsSupervisor(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.report = review.QualityReport{Score: 0.20}

	id := f.enqueue(t, "/inbox/poor.pdf", queue.PriorityNormal)
	f.runOne(t)

	pending := f.gate.Pending()
	if len(pending) != 1 || pending[0].Status != review.StatusEscalated {
		t.Fatalf("expected escalated review, got %+v", pending)
	}

	if _, err := f.gate.SubmitDecision(pending[0].ID, "supervisor", review.StatusApproved, "salvageable", 0.5); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after supervisor approval, got %s", item.Status)
	}
}

func TestDegradedResultNeverAutoApproves(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Retry.MaxAttempts = 1
	})
	f.extractor.failures = -1
	f.executor.RegisterFallback(OpExtract, func(ctx context.Context) error { return nil })
	f.scorer.report = review.QualityReport{Score: 0.99}

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityNormal)
	f.runOne(t)

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusProcessing {
		t.Fatalf("degraded result should park for manual review, got %s", item.Status)
	}
	pending := f.gate.Pending()
	if len(pending) != 1 || pending[0].Type != review.TypeManual {
		t.Fatalf("expected manual review, got %+v", pending)
	}
	if pending[0].Report.CriticalIssueCount() == 0 {
		t.Fatal("degradation must surface as a critical issue")
	}
}

func TestCooperativeCancellationObservedBetweenSteps(t *testing.T) {
	f := newFixture(t, nil)

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityNormal)
	item, ok := f.queue.Dequeue(0)
	if !ok {
		t.Fatal("expected item")
	}
	if !f.queue.Cancel(id) {
		t.Fatal("cancel request should be accepted for processing item")
	}

	f.manager.processItem(context.Background(), logging.NewNop(), item)

	final, _ := f.queue.Get(id)
	if final.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
	if f.extractor.callCount() != 0 {
		t.Fatal("cancelled item must not reach the extractor")
	}
}

func TestCancelDuringManualReviewWinsOverApproval(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.report = review.QualityReport{
		Score:          0.80,
		CriticalIssues: []string{"dates overlap"},
	}

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityNormal)
	f.runOne(t)

	if !f.queue.Cancel(id) {
		t.Fatal("cancel request should be accepted for a parked item")
	}

	pending := f.gate.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one pending review, got %d", len(pending))
	}
	if _, err := f.gate.SubmitDecision(pending[0].ID, pending[0].AssignedReviewer, review.StatusApproved, "looks right", 0.85); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}

	item, _ := f.queue.Get(id)
	if item.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled to win over approval, got %s", item.Status)
	}
	if f.emitter.callCount() != 0 {
		t.Fatalf("cancelled item must not be emitted, got %d emits", f.emitter.callCount())
	}
}

func TestArchiveReceivesTerminalItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	f := newFixture(t, nil)
	f.manager.archive = store
	f.scorer.report = review.QualityReport{Score: 0.10}

	id := f.enqueue(t, "/inbox/poor.pdf", queue.PriorityNormal)
	f.runOne(t)
	pending := f.gate.Pending()
	if _, err := f.gate.SubmitDecision(pending[0].ID, "supervisor", review.StatusRejected, "beyond saving", 0.1); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}

	record, err := store.ItemByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ItemByID: %v", err)
	}
	if record == nil || record.Status != queue.StatusFailed {
		t.Fatalf("expected archived failed item, got %+v", record)
	}
	reviews, err := store.ReviewsForItem(context.Background(), id)
	if err != nil {
		t.Fatalf("ReviewsForItem: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Status != review.StatusRejected {
		t.Fatalf("expected archived rejection, got %+v", reviews)
	}
}

func TestArchivePruneHonorsRetentionWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	f := newFixture(t, nil)
	f.manager.archive = store

	id := f.enqueue(t, "/inbox/jordan.pdf", queue.PriorityNormal)
	f.runOne(t)

	record, err := store.ItemByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ItemByID: %v", err)
	}
	if record == nil {
		t.Fatal("expected completed item in the archive")
	}

	// A generous window keeps the record.
	f.manager.pruneArchive(context.Background(), time.Hour)
	if record, err = store.ItemByID(context.Background(), id); err != nil || record == nil {
		t.Fatalf("record should survive a long retention window, got %+v err %v", record, err)
	}

	// Once the record ages past the window it is removed.
	time.Sleep(5 * time.Millisecond)
	f.manager.pruneArchive(context.Background(), time.Millisecond)
	record, err = store.ItemByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ItemByID after prune: %v", err)
	}
	if record != nil {
		t.Fatalf("expected pruned record, got %+v", record)
	}
}

func TestManagerProcessesQueueEndToEnd(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Workflow.Workers = 3
	})

	ids := make([]string, 0, 6)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		ids = append(ids, f.enqueue(t, "/inbox/"+name+".pdf", queue.PriorityNormal))
	}

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.manager.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats := f.queue.Statistics()
		if stats.Completed == len(ids) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, id := range ids {
		item, _ := f.queue.Get(id)
		if item.Status != queue.StatusCompleted {
			t.Fatalf("item %s: %s", id, item.Status)
		}
	}
	if f.emitter.callCount() != len(ids) {
		t.Fatalf("expected %d emits, got %d", len(ids), f.emitter.callCount())
	}

	status := f.manager.Status()
	if !status.Running || status.Workers != 3 {
		t.Fatalf("status: %+v", status)
	}
}
