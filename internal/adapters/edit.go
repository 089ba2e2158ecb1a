package adapters

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// FFmpegVideoEditor trims, sequences, and burns subtitles into edit
// segments, grounded on hlcut's ffmpeg RenderClip (trim + libx264 encode +
// optional subtitles filter). Multi-segment sequencing, per-segment speed
// ramps, and title overlays extend that single-clip shape to spec's
// EditSegment contract.
type FFmpegVideoEditor struct {
	BinPath      string
	ProbeBinPath string
}

// NewFFmpegVideoEditor constructs a VideoEditor.
func NewFFmpegVideoEditor(binPath, probeBinPath string) *FFmpegVideoEditor {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if probeBinPath == "" {
		probeBinPath = "ffprobe"
	}
	return &FFmpegVideoEditor{BinPath: binPath, ProbeBinPath: probeBinPath}
}

// Edit trims videoPath at each segment's boundaries, applies its speed and
// transition, concatenates the results, and optionally burns in subtitles.
func (e *FFmpegVideoEditor) Edit(ctx context.Context, videoPath string, segments []model.EditSegment, cfg EditOutputConfig) (EditedVideo, error) {
	if len(segments) == 0 {
		return EditedVideo{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageEditVideo, "edit.validate",
			"no segments to edit", nil)
	}

	filterComplex, videoLabel, audioLabel := buildEditFilterGraph(segments)

	args := []string{"-y", "-i", videoPath, "-filter_complex", filterComplex}
	if cfg.SubtitlePath != "" {
		// Burning subtitles in requires a second filter pass over the graph's
		// mapped video output, so it runs as a -vf stage rather than inside
		// filter_complex.
		args = append(args, "-map", videoLabel, "-map", audioLabel,
			"-vf", fmt.Sprintf("subtitles=%s", escapeFilterPath(cfg.SubtitlePath)))
	} else {
		args = append(args, "-map", videoLabel, "-map", audioLabel)
	}

	if cfg.AspectRatio != "" {
		args = append(args, "-aspect", cfg.AspectRatio)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		cfg.OutputPath,
	)

	cmd := exec.CommandContext(ctx, e.BinPath, args...)
	combined, err := cmd.CombinedOutput()
	if err != nil {
		return EditedVideo{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageEditVideo, "edit.render",
			"ffmpeg failed: "+firstLine(string(combined)), err)
	}

	duration, resolution, size := e.probeOutput(ctx, cfg.OutputPath)
	return EditedVideo{
		Path:       cfg.OutputPath,
		Duration:   duration,
		Resolution: resolution,
		Bytes:      size,
	}, nil
}

// buildEditFilterGraph trims each segment, applies its speed factor, adds a
// title overlay when requested, and concatenates every segment's video and
// audio streams into single output labels.
func buildEditFilterGraph(segments []model.EditSegment) (filterComplex, videoLabel, audioLabel string) {
	var parts []string
	var vLabels, aLabels []string

	for i, seg := range segments {
		speed := seg.Speed
		if speed <= 0 {
			speed = 1.0
		}
		vLabel := fmt.Sprintf("v%d", i)
		aLabel := fmt.Sprintf("a%d", i)

		videoChain := fmt.Sprintf("[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS",
			formatSeconds(seg.StartS), formatSeconds(seg.EndS))
		if speed != 1.0 {
			videoChain += fmt.Sprintf(",setpts=%s*PTS", formatSeconds(1.0/speed))
		}
		if seg.Title != "" && seg.TitleDurationS > 0 {
			videoChain += fmt.Sprintf(",drawtext=text='%s':fontcolor=white:fontsize=48:x=(w-text_w)/2:y=80:enable='lt(t,%s)'",
				escapeDrawtext(seg.Title), formatSeconds(seg.TitleDurationS))
		}
		if seg.Transition == model.TransitionFade {
			videoChain += ",fade=in:0:15"
		}
		videoChain += fmt.Sprintf("[%s]", vLabel)
		parts = append(parts, videoChain)

		audioChain := fmt.Sprintf("[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS",
			formatSeconds(seg.StartS), formatSeconds(seg.EndS))
		if speed != 1.0 {
			audioChain += fmt.Sprintf(",atempo=%s", clampAtempo(speed))
		}
		audioChain += fmt.Sprintf("[%s]", aLabel)
		parts = append(parts, audioChain)

		vLabels = append(vLabels, "["+vLabel+"]")
		aLabels = append(aLabels, "["+aLabel+"]")
	}

	concatInputs := strings.Join(vLabels, "") + strings.Join(aLabels, "")
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", concatInputs, len(segments)))

	return strings.Join(parts, "; "), "[outv]", "[outa]"
}

func (e *FFmpegVideoEditor) probeOutput(ctx context.Context, path string) (time.Duration, string, int64) {
	cmd := exec.CommandContext(ctx, e.ProbeBinPath,
		"-v", "error",
		"-show_entries", "format=duration,size:stream=width,height",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, "", 0
	}
	var duration time.Duration
	var width, height int
	var size int64
	for _, line := range strings.Split(string(out), "\n") {
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "duration":
			if sec, err := strconv.ParseFloat(kv[1], 64); err == nil {
				duration = time.Duration(sec * float64(time.Second))
			}
		case "size":
			if v, err := strconv.ParseInt(kv[1], 10, 64); err == nil {
				size = v
			}
		case "width":
			width, _ = strconv.Atoi(kv[1])
		case "height":
			height, _ = strconv.Atoi(kv[1])
		}
	}
	resolution := ""
	if width > 0 && height > 0 {
		resolution = fmt.Sprintf("%dx%d", width, height)
	}
	return duration, resolution, size
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// clampAtempo keeps ffmpeg's atempo filter within its documented [0.5,2.0]
// per-instance bound; speeds outside that range would need chained filters,
// which spec's EditSegment does not call for.
func clampAtempo(speed float64) string {
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 2.0 {
		speed = 2.0
	}
	return formatSeconds(speed)
}

func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	s = strings.ReplaceAll(s, ":", "\\:")
	return s
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
