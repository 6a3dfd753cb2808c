// Package services defines shared utilities consumed by the pipeline
// coordinator and external collaborator integrations.
//
// Key responsibilities:
//   - Context helpers that stamp work item IDs, operation names, and
//     correlation identifiers for logging and tracing.
//   - The error-kind taxonomy (transient, permanent, circuit-open, queue-full,
//     capacity-exceeded) plus the Wrap helper that tags failures for retry
//     classification without relying on concrete error types.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
