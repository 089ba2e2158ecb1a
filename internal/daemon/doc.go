// Package daemon runs clipline as a long-lived, single-instance background
// process. It owns the process-wide checkpoint directory, enforces
// single-instance execution with a lock file, and exposes run, resume,
// listing and status operations to cmd/cliplined. It has no export
// operation, and cmd/clipline drives the pipeline coordinator directly
// rather than through this package.
package daemon
