package logging

import (
	"context"
	"log/slog"

	"clipline/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldLane is the standardized structured logging key for worker lane names.
	FieldLane = "lane"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType is the standardized structured logging key naming a structured event kind.
	FieldEventType = "event_type"
	// FieldDecisionType is the standardized structured logging key naming a routing or selection decision.
	FieldDecisionType = "decision_type"
	// FieldErrorCode is the standardized structured logging key for a pipeline error kind.
	FieldErrorCode = "error_code"
	// FieldErrorHint is the standardized structured logging key for a human-readable remediation hint.
	FieldErrorHint = "error_hint"
	// FieldErrorDetailPath is the standardized structured logging key pointing to a saved error detail file.
	FieldErrorDetailPath = "error_detail_path"
	// FieldProgressStage is the standardized structured logging key for the current stage's display label.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent is the standardized structured logging key for a stage's completion percentage.
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage is the standardized structured logging key for a stage's progress message.
	FieldProgressMessage = "progress_message"
	// FieldProgressETA is the standardized structured logging key for a stage's estimated completion time.
	FieldProgressETA = "progress_eta"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if lane, ok := services.LaneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
