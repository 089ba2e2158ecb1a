package adapters

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// FileSubtitleWriter serializes translated segments to SRT, ASS, or VTT,
// grounded on hlcut's ASS renderer for timestamp formatting and style block
// shape; SRT/VTT follow the same segment-to-cue mapping in their own
// container syntax.
type FileSubtitleWriter struct{}

// NewFileSubtitleWriter constructs a SubtitleWriter.
func NewFileSubtitleWriter() *FileSubtitleWriter {
	return &FileSubtitleWriter{}
}

// Write renders segments into outputPath in the requested format.
func (w *FileSubtitleWriter) Write(ctx context.Context, segments []model.TranslatedSegment, style SubtitleStyle, format SubtitleFormat, outputPath string) (string, error) {
	if len(segments) == 0 {
		return "", pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageGenerateSubtitles, "subtitles.write",
			"no segments to write", nil)
	}

	cues := mergeShortCues(segments, style.MinDurationS)

	var content string
	switch format {
	case SubtitleSRT:
		content = renderSRT(cues)
	case SubtitleVTT:
		content = renderVTT(cues)
	case SubtitleASS:
		content = renderASS(cues, style)
	default:
		return "", pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageGenerateSubtitles, "subtitles.write",
			fmt.Sprintf("unsupported subtitle format %q", format), nil)
	}

	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return "", pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageGenerateSubtitles, "subtitles.write",
			"could not write subtitle file", err)
	}
	return outputPath, nil
}

// minCueGapS is the minimum gap preserved between adjacent cues when
// mergeShortCues borrows time from the following gap.
const minCueGapS = 0.1

// mergeShortCues extends any cue shorter than minDurationS up to that floor,
// borrowing time from the following gap when available, while never closing
// that gap to less than minCueGapS. A minDurationS of zero or less is a
// no-op.
func mergeShortCues(segments []model.TranslatedSegment, minDurationS float64) []model.TranslatedSegment {
	if minDurationS <= 0 {
		return segments
	}
	out := make([]model.TranslatedSegment, len(segments))
	copy(out, segments)
	for i := range out {
		dur := out[i].EndS - out[i].StartS
		if dur >= minDurationS {
			continue
		}
		wanted := out[i].StartS + minDurationS
		if i+1 < len(out) {
			gapLimit := out[i+1].StartS - minCueGapS
			if gapLimit < out[i].StartS {
				gapLimit = out[i].StartS
			}
			if wanted > gapLimit {
				wanted = gapLimit
			}
		}
		if wanted > out[i].EndS {
			out[i].EndS = wanted
		}
	}
	return out
}

func renderSRT(segments []model.TranslatedSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTime(seg.StartS), srtTime(seg.EndS))
		b.WriteString(seg.Translated)
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderVTT(segments []model.TranslatedSegment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", vttTime(seg.StartS), vttTime(seg.EndS))
		b.WriteString(seg.Translated)
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderASS(segments []model.TranslatedSegment, style SubtitleStyle) string {
	fontName := style.FontName
	if fontName == "" {
		fontName = "Inter"
	}
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = 48
	}
	primaryColor := style.PrimaryColor
	if primaryColor == "" {
		primaryColor = "&H00FFFFFF"
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default, %s, %d, %s, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,6,2,2, 80,80,85,1
`, fontName, fontSize, primaryColor)))
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, seg := range segments {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(seg.StartS))
		b.WriteString(",")
		b.WriteString(assTime(seg.EndS))
		b.WriteString(",Default,,0,0,0,,")
		b.WriteString(sanitizeASSText(seg.Translated))
		b.WriteString("\n")
	}
	return b.String()
}

func srtTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	secs := int(d / time.Second)
	d -= time.Duration(secs) * time.Second
	ms := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

func vttTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	secs := int(d / time.Second)
	d -= time.Duration(secs) * time.Second
	ms := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, ms)
}

func assTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASSText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return strings.TrimSpace(s)
}
