package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vitae/internal/config"
	"vitae/internal/logging"
	"vitae/internal/pipeline"
	"vitae/internal/watch"
)

// Daemon ties the pipeline manager, the inbox watcher, and the HTTP API into
// one lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *pipeline.Manager
	watcher *watch.Watcher
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. The watcher may be
// nil when inbox watching is not wanted (tests drive Enqueue directly).
func New(cfg *config.Config, manager *pipeline.Manager, watcher *watch.Watcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || manager == nil || logger == nil {
		return nil, errors.New("daemon requires config, pipeline manager, and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "vitaed.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		manager:  manager,
		watcher:  watcher,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, manager, d.logger)
	return d, nil
}

// Start acquires the instance lock and launches the manager, watcher, and API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vitae daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		d.teardown()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			d.manager.Stop()
			d.teardown()
			return fmt.Errorf("start watcher: %w", err)
		}
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			if d.watcher != nil {
				d.watcher.Stop()
			}
			d.manager.Stop()
			d.teardown()
			return fmt.Errorf("start api: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("vitae daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts all services and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.api != nil {
		d.api.stop()
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.manager.Stop()
	d.teardown()
	d.running.Store(false)
	d.logger.Info("vitae daemon stopped")
}

// Close stops the daemon and closes the history archive.
func (d *Daemon) Close() error {
	d.Stop()
	if archive := d.manager.Archive(); archive != nil {
		return archive.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API address, or "" before Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
