// Package queue implements the in-memory priority work queue at the heart of
// the pipeline.
//
// Items are ordered by priority tier (critical before background) and FIFO
// within a tier. Dequeue blocks on a condition variable until an item is due
// and a processing slot is free, so workers never poll. Failed items re-enter
// the queue on a backoff schedule and stay invisible until their due time.
// Terminal items (completed, failed, cancelled) remain queryable until the
// retention window evicts them.
//
// Every item transition goes through the queue's state machine; a worker owns
// an item exclusively between Dequeue and Complete and receives a copy, never
// the canonical record.
package queue
