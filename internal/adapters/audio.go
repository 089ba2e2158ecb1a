package adapters

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// FFmpegAudioExtractor shells out to ffmpeg to produce a 16kHz mono 16-bit
// PCM WAV, matching the original project's audio_processor module exactly:
// `ffmpeg -y -i <video> -vn -acodec pcm_s16le -ar 16000 -ac 1 <output.wav>`.
type FFmpegAudioExtractor struct {
	BinPath string // defaults to "ffmpeg" on PATH
}

// NewFFmpegAudioExtractor constructs an AudioExtractor.
func NewFFmpegAudioExtractor(binPath string) *FFmpegAudioExtractor {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegAudioExtractor{BinPath: binPath}
}

const (
	extractSampleRateHz = 16000
	extractChannels     = 1
)

// ExtractAudio writes a WAV sidecar for videoPath into outputDir.
func (f *FFmpegAudioExtractor) ExtractAudio(ctx context.Context, videoPath, outputDir string) (model.AudioArtifact, error) {
	if strings.TrimSpace(videoPath) == "" {
		return model.AudioArtifact{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageExtractAudio, "audio.validate",
			"video path is empty", nil)
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outputPath := filepath.Join(outputDir, base+".wav")

	cmd := exec.CommandContext(ctx, f.BinPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return model.AudioArtifact{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageExtractAudio, "audio.extract",
			"ffmpeg failed: "+firstLine(stderr.String()), err)
	}

	return model.AudioArtifact{
		Path:         outputPath,
		SampleRateHz: extractSampleRateHz,
		Channels:     extractChannels,
	}, nil
}
