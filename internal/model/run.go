package model

import "github.com/google/uuid"

// RunID uniquely identifies one end-to-end pipeline invocation. It keys the
// checkpoint store and the run's temp directory.
type RunID string

// NewRunID mints a fresh RunID.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// Stage names one step of the fixed pipeline sequence. Stage values double
// as checkpoint cursor positions and as StageRunner identifiers.
type Stage string

const (
	StagePending           Stage = "PENDING"
	StageFetch             Stage = "FETCH"
	StageExtractAudio      Stage = "EXTRACT_AUDIO"
	StageTranscribe        Stage = "TRANSCRIBE"
	StageAnalyze           Stage = "ANALYZE"
	StageAwaitUserSelection Stage = "AWAIT_USER_SELECTION"
	StageTranslate         Stage = "TRANSLATE"
	StageGenerateSubtitles Stage = "GENERATE_SUBTITLES"
	StageEditVideo         Stage = "EDIT_VIDEO"
	StageExport            Stage = "EXPORT"
	StageCompleted         Stage = "COMPLETED"
	StageFailed            Stage = "FAILED"
	StageCanceled          Stage = "CANCELED"
)

// Sequence is the fixed, ordered stage list a run advances through.
var Sequence = []Stage{
	StageFetch,
	StageExtractAudio,
	StageTranscribe,
	StageAnalyze,
	StageAwaitUserSelection,
	StageTranslate,
	StageGenerateSubtitles,
	StageEditVideo,
	StageExport,
}

// Weight returns the stage's static contribution to overall run progress.
// Weights sum to 1.0 across Sequence.
func (s Stage) Weight() float64 {
	switch s {
	case StageFetch:
		return 0.05
	case StageExtractAudio:
		return 0.05
	case StageTranscribe:
		return 0.25
	case StageAnalyze:
		return 0.10
	case StageAwaitUserSelection:
		return 0.0
	case StageTranslate:
		return 0.20
	case StageGenerateSubtitles:
		return 0.05
	case StageEditVideo:
		return 0.20
	case StageExport:
		return 0.10
	default:
		return 0
	}
}

// IsTerminal reports whether the stage represents a finished run.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCanceled
}

// Next returns the stage that follows s in Sequence, and false if s is the
// last stage or not part of Sequence.
func Next(s Stage) (Stage, bool) {
	for i, cur := range Sequence {
		if cur == s {
			if i+1 < len(Sequence) {
				return Sequence[i+1], true
			}
			return StageCompleted, true
		}
	}
	return "", false
}
