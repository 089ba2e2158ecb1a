// Package stagerunner implements the generic per-stage execution wrapper
// described in spec §4.2: cancellation polling between items, progress
// callbacks throttled to one per 200ms, checkpoint-driven skip-on-resume,
// and SUCCESS/PARTIAL/FAILED outcome classification.
//
// Runner has no knowledge of what a stage actually does -- that lives in
// the worker function the caller supplies -- mirroring the teacher's own
// separation between its workflow manager (sequencing) and its stage
// handlers (domain work).
package stagerunner
