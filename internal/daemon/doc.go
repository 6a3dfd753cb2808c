// Package daemon coordinates the long-running vitae process.
//
// It owns the lifecycle of the pipeline manager, the inbox watcher, and the
// HTTP API, with flock-based locking to prevent multiple instances. Keep
// orchestration logic here: pipeline semantics live in internal/pipeline and
// the daemon focuses on startup, shutdown, and the external surface.
package daemon
