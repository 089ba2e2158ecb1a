package adapters

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"clipline/internal/language"
	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// WhisperCppTranscriber wraps a whisper.cpp CLI invocation, grounded on
// hlcut's whispercpp adapter: run the binary with JSON output requested,
// then read the JSON sidecar back rather than parsing stdout.
type WhisperCppTranscriber struct {
	BinPath   string
	ModelPath string
	CacheDir  string
}

// NewWhisperCppTranscriber constructs a Transcriber. cacheDir holds the
// transient -of output prefix; it is not cleaned up by the adapter.
func NewWhisperCppTranscriber(binPath, modelPath, cacheDir string) *WhisperCppTranscriber {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &WhisperCppTranscriber{BinPath: binPath, ModelPath: modelPath, CacheDir: cacheDir}
}

type whisperJSONOutput struct {
	Transcription []whisperSegmentJSON `json:"transcription"`
	Result        struct {
		Language string `json:"language"`
	} `json:"result"`
}

type whisperSegmentJSON struct {
	Offsets struct {
		From int64 `json:"from"` // milliseconds
		To   int64 `json:"to"`
	} `json:"offsets"`
	Text   string             `json:"text"`
	Tokens []whisperTokenJSON `json:"tokens,omitempty"`
}

type whisperTokenJSON struct {
	Text      string  `json:"text"`
	Timestamp float64 `json:"t_dtw,omitempty"`
	Prob      float64 `json:"p,omitempty"`
	Offsets   struct {
		From int64 `json:"from"`
		To   int64 `json:"to"`
	} `json:"offsets"`
}

// Transcribe runs whisper.cpp over audioPath and returns timed segments.
func (t *WhisperCppTranscriber) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (model.TranscriptionResult, error) {
	if strings.TrimSpace(audioPath) == "" {
		return model.TranscriptionResult{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageTranscribe, "transcribe.validate",
			"audio path is empty", nil)
	}

	outPrefix := filepath.Join(t.CacheDir, strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath)))
	args := []string{
		"-m", t.ModelPath,
		"-f", audioPath,
		"-oj",
		"-of", outPrefix,
	}
	if opts.Language != "" {
		lang := language.ToISO2(opts.Language)
		if lang == "" {
			lang = opts.Language
		}
		args = append(args, "-l", lang)
	} else {
		args = append(args, "-l", "auto")
	}
	if opts.Diarize {
		args = append(args, "-di")
	}

	cmd := exec.CommandContext(ctx, t.BinPath, args...)
	combined, err := cmd.CombinedOutput()
	if err != nil {
		return model.TranscriptionResult{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageTranscribe, "transcribe.run",
			"whisper failed: "+firstLine(string(combined)), err)
	}

	raw, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return model.TranscriptionResult{}, pipelineerr.Wrap(pipelineerr.ErrParseFailure, model.StageTranscribe, "transcribe.readback",
			"could not read whisper JSON output", err)
	}

	var out whisperJSONOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return model.TranscriptionResult{}, pipelineerr.Wrap(pipelineerr.ErrParseFailure, model.StageTranscribe, "transcribe.parse",
			"could not parse whisper JSON output", err)
	}

	segments := make([]model.Segment, 0, len(out.Transcription))
	var lastEnd float64
	for i, seg := range out.Transcription {
		startS := float64(seg.Offsets.From) / 1000.0
		endS := float64(seg.Offsets.To) / 1000.0
		words := make([]model.WordTiming, 0, len(seg.Tokens))
		for _, tok := range seg.Tokens {
			word := strings.TrimSpace(tok.Text)
			if word == "" {
				continue
			}
			words = append(words, model.WordTiming{
				Word:       word,
				StartS:     float64(tok.Offsets.From) / 1000.0,
				EndS:       float64(tok.Offsets.To) / 1000.0,
				Confidence: tok.Prob,
			})
		}
		segments = append(segments, model.Segment{
			ID:     i,
			StartS: startS,
			EndS:   endS,
			Text:   strings.TrimSpace(seg.Text),
			Words:  words,
		})
		lastEnd = endS
	}

	detected := language.ToISO2(out.Result.Language)
	if detected == "" {
		detected = out.Result.Language
	}
	return model.TranscriptionResult{
		Segments: segments,
		Language: detected,
		Duration: time.Duration(lastEnd * float64(time.Second)),
	}, nil
}
