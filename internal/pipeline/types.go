package pipeline

import (
	"context"

	"clipline/internal/adapters"
	"clipline/internal/config"
	"clipline/internal/export"
	"clipline/internal/llmrouter"
	"clipline/internal/model"
	"clipline/internal/notifications"
	"clipline/internal/resource"
	"clipline/internal/translate"
)

// ProgressFunc receives a run's overall progress in [0,1], the stage
// currently executing, and a human-readable status message. Calls are not
// throttled at this layer; StageRunner already throttles per-item calls.
type ProgressFunc func(runID model.RunID, stage model.Stage, overallProgress float64, message string)

// Selector chooses which highlights become edit segments after ANALYZE.
// The default selector (used when Deps.Selector is nil) turns every
// highlight into a straight cut titled with its suggested title, honoring
// spec's AWAIT_USER_SELECTION-is-a-pass-through-when-unattended default.
type Selector func(ctx context.Context, analysis model.AnalysisResult, segments []model.Segment) ([]model.EditSegment, error)

// Deps wires every external collaborator the coordinator drives. Selector,
// Gate, Notifier and OnProgress may be nil: a nil Selector means
// defaultSelector, a nil Gate admits every launch, and a nil Notifier or
// OnProgress is skipped. The coordinator does not read Monitor.
type Deps struct {
	Config *config.Config

	Fetcher        adapters.Fetcher
	AudioExtractor adapters.AudioExtractor
	Transcriber    adapters.Transcriber
	Router         *llmrouter.Router
	Translator     *translate.Batcher
	SubtitleWriter adapters.SubtitleWriter
	VideoEditor    adapters.VideoEditor
	Exporter       *export.BatchExporter
	Monitor        *resource.Monitor
	Gate           *resource.Gate
	Notifier       notifications.Service
	CheckpointDir  string
	TempDir        string
	ExportDir      string

	Selector Selector

	// OnProgress receives overall run progress. The daemon.Runner interface
	// Coordinator satisfies has no per-call progress parameter, so this is
	// wired once at construction instead of per Run/Resume call.
	OnProgress ProgressFunc
}
