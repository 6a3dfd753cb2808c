// Package logging wraps log/slog with the handlers and attribute helpers the
// daemon and CLI share. It provides a console handler for interactive use, a
// JSON handler for log files, standardized field keys, and context-derived
// attribute extraction so every component logs item and operation identifiers
// the same way.
package logging
