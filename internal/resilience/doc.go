// Package resilience shields calls to unreliable collaborators with bounded
// retries and per-operation circuit breakers.
//
// Breakers are keyed singletons: every worker calling the same operation name
// shares one breaker, so a broadly failing dependency trips the circuit once
// and all workers fail fast instead of stacking retries against it. Retry
// delays come from a configurable backoff policy; error classification uses
// the services error-kind taxonomy, never concrete error types. A registered
// fallback can convert an exhausted failure into a degraded result, which is
// always flagged so downstream review never mistakes it for a clean success.
package resilience
