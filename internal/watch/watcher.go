// Package watch feeds the pipeline from an inbox directory. New document
// files are fingerprinted once their writes settle and enqueued; a periodic
// rescan catches anything a missed filesystem event left behind.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vitae/internal/config"
	"vitae/internal/fileutil"
	"vitae/internal/logging"
	"vitae/internal/queue"
	"vitae/internal/services"
)

const (
	defaultSettleDelay    = 500 * time.Millisecond
	defaultRescanInterval = time.Minute
)

var watchedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Enqueuer is the slice of the pipeline manager the watcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload queue.Payload, priority queue.Priority) (string, error)
}

// Watcher monitors the inbox directory and enqueues dropped documents.
type Watcher struct {
	inbox    string
	enqueuer Enqueuer
	logger   *slog.Logger
	settle   time.Duration
	rescan   time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]string

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	watcher *fsnotify.Watcher
}

// Option customizes watcher construction.
type Option func(*Watcher)

// WithSettleDelay overrides how long a file must stay quiet before it is
// enqueued (used in tests).
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithRescanInterval overrides the periodic rescan interval (used in tests).
func WithRescanInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.rescan = d
		}
	}
}

// New constructs a watcher over the configured inbox directory.
func New(cfg *config.Config, enqueuer Enqueuer, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		inbox:    cfg.Paths.InboxDir,
		enqueuer: enqueuer,
		logger:   logging.NewComponentLogger(logger, "watch"),
		settle:   defaultSettleDelay,
		rescan:   defaultRescanInterval,
		timers:   make(map[string]*time.Timer),
		seen:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It scans the inbox once so documents dropped while
// the daemon was down are picked up.
func (w *Watcher) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel != nil {
		return nil
	}

	if err := os.MkdirAll(w.inbox, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "watch", "create inbox directory", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "watch", "create filesystem watcher", err)
	}
	if err := fsw.Add(w.inbox); err != nil {
		fsw.Close()
		return services.Wrap(services.ErrConfiguration, "watch", "watch inbox directory", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.watcher = fsw

	w.wg.Add(1)
	go w.run(runCtx, fsw)

	w.scan(runCtx)
	w.logger.Info("watching inbox", logging.String("dir", w.inbox))
	return nil
}

// Stop halts the watcher and waits for in-flight work to finish.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
	w.cancel = nil
	w.watcher = nil

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.scheduleSettle(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scheduleSettle (re)arms the per-file settle timer. Each write resets it, so
// the file is only enqueued once the writer goes quiet.
func (w *Watcher) scheduleSettle(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.submit(ctx, path)
	})
}

// scan walks the inbox and submits every candidate file.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		w.logger.Warn("inbox scan failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() || !watchedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		w.submit(ctx, filepath.Join(w.inbox, entry.Name()))
	}
}

func (w *Watcher) submit(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	fingerprint, err := fileutil.HashFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("fingerprint failed", logging.String("path", path), logging.Error(err))
		}
		return
	}

	w.mu.Lock()
	if w.seen[path] == fingerprint {
		w.mu.Unlock()
		return
	}
	w.seen[path] = fingerprint
	w.mu.Unlock()

	id, err := w.enqueuer.Enqueue(ctx, queue.Payload{SourcePath: path, Fingerprint: fingerprint}, queue.PriorityNormal)
	switch {
	case errors.Is(err, queue.ErrDuplicateItem):
		// Already tracked; nothing to do.
	case services.KindOf(err) == services.KindQueueFull:
		// Leave the file for the next rescan.
		w.mu.Lock()
		delete(w.seen, path)
		w.mu.Unlock()
		w.logger.Warn("queue full, deferring document", logging.String("path", path))
	case err != nil:
		w.mu.Lock()
		delete(w.seen, path)
		w.mu.Unlock()
		w.logger.Error("enqueue failed", logging.String("path", path), logging.Error(err))
	default:
		w.logger.Info("document enqueued",
			logging.String(logging.FieldItemID, id),
			logging.String("path", path),
		)
	}
}
