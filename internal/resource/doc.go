// Package resource samples host CPU/memory/GPU load and gates admission of
// new external subprocesses against configurable ceilings.
//
// Monitor owns a single background sampling goroutine; Gate reads its
// snapshot plus a live job registry to decide whether a fetch, encode, or
// export job may start. Monitor has an explicit lifecycle: callers start and
// stop it, mirroring the rest of the pipeline's worker-pool-plus-
// cancellation-token model rather than a module-level singleton. Gate runs
// no goroutine of its own and has no start or stop.
package resource
