package adapters

import (
	"context"
	"time"

	"clipline/internal/model"
)

// Fetcher downloads a remote video and reports its metadata. Grounded on
// spec §6's Fetcher row: URL, output dir, quality in; VideoArtifact out.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, outputDir, quality string) (model.VideoArtifact, error)
}

// AudioExtractor produces a 16kHz mono 16-bit PCM WAV from a video file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, outputDir string) (model.AudioArtifact, error)
}

// TranscribeOptions carries the Transcriber row's optional inputs.
type TranscribeOptions struct {
	Language string // empty triggers language auto-detection
	Diarize  bool
}

// Transcriber turns an audio file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (model.TranscriptionResult, error)
}

// SubtitleFormat names an output subtitle container.
type SubtitleFormat string

const (
	SubtitleSRT SubtitleFormat = "srt"
	SubtitleASS SubtitleFormat = "ass"
	SubtitleVTT SubtitleFormat = "vtt"
)

// SubtitleStyle carries presentation hints a writer may honor; ASS uses all
// of these, SRT/VTT ignore styling fields other than MinDurationS.
type SubtitleStyle struct {
	FontName     string
	FontSize     int
	PrimaryColor string // ASS &HAABBGGRR or CSS-style hex, writer-specific
	MinDurationS float64
}

// SubtitleWriter serializes translated segments into a subtitle file.
type SubtitleWriter interface {
	Write(ctx context.Context, segments []model.TranslatedSegment, style SubtitleStyle, format SubtitleFormat, outputPath string) (string, error)
}

// EditOutputConfig carries VideoEditor's target encode settings.
type EditOutputConfig struct {
	OutputPath   string
	AspectRatio  string // e.g. "16:9", "9:16"; empty preserves source
	SubtitlePath string
}

// EditedVideo is VideoEditor's success result.
type EditedVideo struct {
	Path       string
	Duration   time.Duration
	Resolution string
	Bytes      int64
}

// VideoEditor trims, sequences, and burns subtitles into edit segments.
type VideoEditor interface {
	Edit(ctx context.Context, videoPath string, segments []model.EditSegment, cfg EditOutputConfig) (EditedVideo, error)
}
