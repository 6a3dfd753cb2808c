// Package daemonrun wires configuration, logging, storage, and the pipeline
// into a running daemon process. It is shared by the vitaed binary and the
// CLI's foreground daemon command.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"vitae/internal/config"
	"vitae/internal/cv"
	"vitae/internal/daemon"
	"vitae/internal/history"
	"vitae/internal/logging"
	"vitae/internal/metrics"
	"vitae/internal/pipeline"
	"vitae/internal/queue"
	"vitae/internal/resilience"
	"vitae/internal/review"
	"vitae/internal/watch"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the vitae daemon and blocks until the context is cancelled or a
// termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vitae-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vitae.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "vitae.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	archive, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer archive.Close()

	q := queue.New(cfg)
	gate := review.NewGate(cfg, logger)
	executor, err := resilience.NewExecutor(cfg, logger)
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	manager, err := pipeline.NewManager(cfg, q, gate, executor, pipeline.Collaborators{
		Extractor: cv.NewFileExtractor(),
		Parser:    cv.NewHeuristicParser(),
		Scorer:    cv.NewHeuristicScorer(),
		Emitter:   cv.NewJSONEmitter(cfg.Paths.OutputDir),
	}, logger,
		pipeline.WithArchive(archive),
		pipeline.WithMetrics(metrics.NewCollector()),
	)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	watcher := watch.New(cfg, manager, logger)

	d, err := daemon.New(cfg, manager, watcher, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("vitae daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vitae.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
