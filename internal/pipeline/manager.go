package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vitae/internal/config"
	"vitae/internal/history"
	"vitae/internal/logging"
	"vitae/internal/metrics"
	"vitae/internal/notifications"
	"vitae/internal/queue"
	"vitae/internal/resilience"
	"vitae/internal/review"
	"vitae/internal/services"
)

// Manager drives the worker pool over the shared queue and owns the wiring
// between the executor, the review gate, and the collaborators.
type Manager struct {
	cfg      *config.Config
	queue    *queue.Queue
	gate     *review.Gate
	executor *resilience.Executor
	collab   Collaborators
	notifier notifications.Service
	archive  *history.Store
	metrics  *metrics.Collector
	logger   *slog.Logger

	workers        int
	dequeueTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	recordMu sync.Mutex
	records  map[string]stashedWork

	similar *similarityIndex

	breakerMu   sync.Mutex
	breakerSeen map[string]resilience.BreakerState
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithArchive attaches the history archive; terminal items and decided
// reviews are persisted to it.
func WithArchive(store *history.Store) ManagerOption {
	return func(m *Manager) {
		m.archive = store
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) ManagerOption {
	return func(m *Manager) {
		m.metrics = collector
	}
}

// NewManager constructs the coordinator. All four collaborators are required;
// a missing one is a configuration error surfaced at construction time.
func NewManager(
	cfg *config.Config,
	q *queue.Queue,
	gate *review.Gate,
	executor *resilience.Executor,
	collab Collaborators,
	logger *slog.Logger,
	opts ...ManagerOption,
) (*Manager, error) {
	switch {
	case collab.Extractor == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "extractor collaborator required", nil)
	case collab.Parser == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "parser collaborator required", nil)
	case collab.Scorer == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "scorer collaborator required", nil)
	case collab.Emitter == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "emitter collaborator required", nil)
	}

	m := &Manager{
		cfg:            cfg,
		queue:          q,
		gate:           gate,
		executor:       executor,
		collab:         collab,
		notifier:       notifications.NewService(cfg),
		logger:         logging.NewComponentLogger(logger, "pipeline"),
		workers:        cfg.Workflow.Workers,
		dequeueTimeout: time.Duration(cfg.Workflow.DequeueTimeout) * time.Second,
		records:        make(map[string]stashedWork),
		similar:        newSimilarityIndex(defaultRecentWindow),
		breakerSeen:    make(map[string]resilience.BreakerState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	if m.dequeueTimeout <= 0 {
		m.dequeueTimeout = time.Second
	}

	gate.SetCallbacks(review.Callbacks{
		Approved:      m.handleApproved,
		Rejected:      m.handleRejected,
		NeedsRevision: m.handleNeedsRevision,
		Escalated:     m.handleEscalated,
	})
	return m, nil
}

// Enqueue adds a document to the queue and emits the arrival side effects.
func (m *Manager) Enqueue(ctx context.Context, payload queue.Payload, priority queue.Priority) (string, error) {
	id, err := m.queue.Enqueue(payload, priority)
	if err != nil {
		return "", err
	}
	m.metrics.RecordEnqueue()
	if err := m.notifier.NotifyDocumentArrived(ctx, payload.SourcePath); err != nil {
		m.logger.Debug("arrival notification failed", logging.Error(err))
	}
	m.logger.Info("document enqueued",
		logging.String(logging.FieldItemID, id),
		logging.String(logging.FieldPriority, priority.String()),
		logging.String("source_path", payload.SourcePath),
	)
	return id, nil
}

// Queue exposes the underlying work queue for monitoring surfaces.
func (m *Manager) Queue() *queue.Queue { return m.queue }

// Gate exposes the review gate for decision submission and monitoring.
func (m *Manager) Gate() *review.Gate { return m.gate }

// Executor exposes the resilient executor for breaker snapshots.
func (m *Manager) Executor() *resilience.Executor { return m.executor }

// Archive exposes the history store, when attached.
func (m *Manager) Archive() *history.Store { return m.archive }

// Metrics exposes the metrics collector, when attached.
func (m *Manager) Metrics() *metrics.Collector { return m.metrics }

// Status is a point-in-time view of the whole pipeline.
type Status struct {
	Running  bool                         `json:"running"`
	Workers  int                          `json:"workers"`
	Queue    queue.Stats                  `json:"queue"`
	Review   review.Stats                 `json:"review"`
	Breakers []resilience.BreakerSnapshot `json:"breakers"`
}

// Status reports the current pipeline state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return Status{
		Running:  running,
		Workers:  m.workers,
		Queue:    m.queue.Statistics(),
		Review:   m.gate.Statistics(),
		Breakers: m.executor.Breakers().Snapshots(),
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runHousekeeping(runCtx)

	m.logger.Info("pipeline started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for the workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("pipeline stopped")
}

func (m *Manager) runWorker(ctx context.Context, workerID int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := m.queue.Dequeue(m.dequeueTimeout)
		if !ok {
			continue
		}
		m.metrics.RecordDispatch()
		m.processItem(ctx, logger, item)
	}
}

// runHousekeeping refreshes gauges, evicts expired terminal items, and
// watches for breaker transitions.
func (m *Manager) runHousekeeping(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.queue.Statistics()
			m.metrics.UpdateQueueStats(stats.Pending+stats.Retrying, stats.Processing)
			m.publishBreakerStates(ctx)
		case <-cleanup.C:
			if evicted := m.queue.Cleanup(); evicted > 0 {
				m.logger.Info("queue retention cleanup", logging.Int("evicted", evicted))
			}
			retention := time.Duration(m.cfg.Queue.RetentionHours) * time.Hour
			if retention > 0 {
				m.gate.Cleanup(retention)
				m.pruneArchive(ctx, retention)
			}
		}
	}
}

func (m *Manager) publishBreakerStates(ctx context.Context) {
	for _, snap := range m.executor.Breakers().Snapshots() {
		m.metrics.SetBreakerState(snap.Name, breakerStateValue(snap.State))

		m.breakerMu.Lock()
		previous, seen := m.breakerSeen[snap.Name]
		m.breakerSeen[snap.Name] = snap.State
		m.breakerMu.Unlock()

		if snap.State == resilience.StateOpen && (!seen || previous != resilience.StateOpen) {
			m.logger.Warn("circuit breaker opened",
				logging.String(logging.FieldOperation, snap.Name),
				logging.Int("failure_count", snap.FailureCount),
			)
			if err := m.notifier.NotifyBreakerOpened(ctx, snap.Name); err != nil {
				m.logger.Debug("breaker notification failed", logging.Error(err))
			}
		}
	}
}

func breakerStateValue(state resilience.BreakerState) float64 {
	switch state {
	case resilience.StateOpen:
		return 2
	case resilience.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// stashedWork keeps the parsed record, plus the failure records accrued so
// far in this processing pass, for an item parked on a review decision.
type stashedWork struct {
	record   *Record
	attempts []services.ErrorContext
}

func (m *Manager) stashWork(itemID string, record *Record, attempts []services.ErrorContext) {
	m.recordMu.Lock()
	m.records[itemID] = stashedWork{record: record, attempts: attempts}
	m.recordMu.Unlock()
}

func (m *Manager) takeWork(itemID string) stashedWork {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()
	work := m.records[itemID]
	delete(m.records, itemID)
	return work
}
