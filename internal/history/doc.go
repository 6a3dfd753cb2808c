// Package history archives finished work items and review decisions to a
// SQLite database. The hot path stays in memory; this store exists so
// terminally failed and rejected items remain queryable with their full error
// and decision history after the in-memory retention window.
package history
