// Package export implements the BatchExporter spec §4.9 describes: a
// bounded-concurrency queue of export requests admitted through a
// resource.Gate, with continue-on-error and retry-failed policies. Request
// state survives process restarts in a SQLite-backed registry, grounded on
// the teacher's queue.Store.
package export
