package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"clipline/internal/model"
)

func translatedSeg(id int, start, end float64) model.TranslatedSegment {
	return model.TranslatedSegment{ID: id, StartS: start, EndS: end, Translated: "hola"}
}

func TestMergeShortCuesExtendsToMinDuration(t *testing.T) {
	segments := []model.TranslatedSegment{translatedSeg(1, 0, 0.2)}
	out := mergeShortCues(segments, 1.0)
	if got := out[0].EndS - out[0].StartS; got != 1.0 {
		t.Fatalf("expected extended duration 1.0, got %v", got)
	}
}

func TestMergeShortCuesPreservesMinGap(t *testing.T) {
	// Cue 0 is short and would naturally extend past cue 1's start; the
	// boundary must never close to less than minCueGapS.
	segments := []model.TranslatedSegment{
		translatedSeg(1, 0, 0.2),
		translatedSeg(2, 1.0, 2.0),
	}
	out := mergeShortCues(segments, 2.0)

	gap := out[1].StartS - out[0].EndS
	if gap < minCueGapS-1e-9 {
		t.Fatalf("gap between cues shrank below %v: got %v (cue0 end %v, cue1 start %v)",
			minCueGapS, gap, out[0].EndS, out[1].StartS)
	}
	if out[0].EndS <= out[0].StartS {
		t.Fatalf("cue0 end must stay after its own start: %+v", out[0])
	}
}

func TestMergeShortCuesNeverReordersOrOverlapsFollowingCue(t *testing.T) {
	segments := []model.TranslatedSegment{
		translatedSeg(1, 0, 0.05),
		translatedSeg(2, 0.1, 5.0),
	}
	out := mergeShortCues(segments, 10.0)

	if out[0].StartS != segments[0].StartS {
		t.Fatalf("ordering start changed: got %v want %v", out[0].StartS, segments[0].StartS)
	}
	if out[0].EndS > out[1].StartS {
		t.Fatalf("cue0 overlaps cue1: cue0 end %v, cue1 start %v", out[0].EndS, out[1].StartS)
	}
}

func TestMergeShortCuesZeroMinDurationIsNoop(t *testing.T) {
	segments := []model.TranslatedSegment{translatedSeg(1, 0, 0.1)}
	out := mergeShortCues(segments, 0)
	if out[0].EndS != segments[0].EndS {
		t.Fatalf("expected no-op with minDurationS<=0, got %+v", out[0])
	}
}

func TestFileSubtitleWriterWriteRejectsEmptySegments(t *testing.T) {
	w := NewFileSubtitleWriter()
	_, err := w.Write(context.Background(), nil, SubtitleStyle{}, SubtitleSRT, filepath.Join(t.TempDir(), "out.srt"))
	if err == nil {
		t.Fatal("expected error for empty segment list")
	}
}

func TestFileSubtitleWriterWriteSRT(t *testing.T) {
	w := NewFileSubtitleWriter()
	segments := []model.TranslatedSegment{translatedSeg(1, 0, 2.5)}
	outPath := filepath.Join(t.TempDir(), "out.srt")

	got, err := w.Write(context.Background(), segments, SubtitleStyle{MinDurationS: 1.0}, SubtitleSRT, outPath)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if got != outPath {
		t.Fatalf("expected returned path %q, got %q", outPath, got)
	}
	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(content) == 0 {
		t.Fatal("expected non-empty SRT output")
	}
}
