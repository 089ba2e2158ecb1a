// Package pipeline implements the PipelineCoordinator spec §4.1 describes:
// a single-run state machine that drives FETCH through EXPORT, aggregates
// stage-weighted progress, retries transient stage failures with backoff,
// and persists a checkpoint after every stage and item boundary so a
// crashed or cancelled run resumes from its last completed item.
//
// The coordinator is grounded on the teacher's workflow.Manager: an
// explicit Start/Stop lifecycle is not needed here (one Coordinator serves
// many independent runs rather than owning a background poll loop), but the
// same executeStage/handleStageFailure shape — prepare, run with
// cancellation support, classify the outcome, persist, notify — carries
// over almost unchanged.
package pipeline
