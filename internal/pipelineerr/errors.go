// Package pipelineerr defines the pipeline's error taxonomy: a fixed set of
// error kinds, a typed PipelineError carrying kind/stage/cause, and the
// retry classification PipelineCoordinator's stage retry loop uses to decide
// whether a failure is retryable, terminal, or escalates to the caller.
package pipelineerr

import (
	"errors"
	"fmt"
	"strings"

	"clipline/internal/model"
)

// Kind sentinels. errors.Is against these to classify a failure; Wrap
// attaches one to a concrete error via %w chaining.
var (
	ErrTransientNetwork    = errors.New("transient_network")
	ErrRateLimited         = errors.New("rate_limited")
	ErrInvalidInput        = errors.New("invalid_input")
	ErrResourceExhausted   = errors.New("resource_exhausted")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrParseFailure        = errors.New("parse_failure")
	ErrPartialFailure      = errors.New("partial_failure")
	ErrCancelled           = errors.New("cancelled")
	ErrCorruptState        = errors.New("corrupt_state")
)

// kinds lists every sentinel in taxonomy order, used by Classify.
var kinds = []error{
	ErrTransientNetwork,
	ErrRateLimited,
	ErrInvalidInput,
	ErrResourceExhausted,
	ErrProviderUnavailable,
	ErrParseFailure,
	ErrPartialFailure,
	ErrCancelled,
	ErrCorruptState,
}

// Wrap builds an error tagged with marker and annotated with stage/operation
// context, mirroring the shape stage functions return to StageRunner.
func Wrap(marker error, stage model.Stage, operation, message string, cause error) error {
	detail := buildDetail(string(stage), operation, message)
	if marker == nil {
		marker = ErrTransientNetwork
	}
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, cause)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{stage, operation, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}

// Classify returns the taxonomy kind err is tagged with, or ErrTransientNetwork
// if err carries none of the known markers.
func Classify(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrTransientNetwork
}

// Retryable reports whether the retry policy table in the error handling
// design (§7) treats err's kind as retryable at all. PipelineCoordinator's
// stage retry loop enforces its own retry budget on top of this.
func Retryable(err error) bool {
	switch Classify(err) {
	case ErrTransientNetwork, ErrRateLimited, ErrProviderUnavailable, ErrParseFailure, ErrPartialFailure:
		return true
	case ErrResourceExhausted:
		return true // retried within the stage retry budget; no configuration downshift happens first
	default:
		return false
	}
}

// PipelineError is returned across the Run/RunFromCheckpoint boundary when a
// failure escalates past its stage.
type PipelineError struct {
	Kind        error
	Stage       model.Stage
	Cause       error
	Retryable   bool
	UserMessage string
}

func (e *PipelineError) Error() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s failed at stage %s: %v", e.Kind, e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s failed at stage %s", e.Kind, e.Stage)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewPipelineError builds a PipelineError from a stage-level error, deriving
// Kind and Retryable via Classify/Retryable.
func NewPipelineError(stage model.Stage, cause error, userMessage string) *PipelineError {
	return &PipelineError{
		Kind:        Classify(cause),
		Stage:       stage,
		Cause:       cause,
		Retryable:   Retryable(cause),
		UserMessage: userMessage,
	}
}
