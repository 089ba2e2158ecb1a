// Package wiring assembles a pipeline.Coordinator and its collaborators
// from a loaded Config. Both cmd/clipline and cmd/cliplined need the exact
// same construction (adapters, router, translator, exporter, resource
// gate), so it lives here rather than being duplicated between the two
// main packages, the same way the teacher's cmd/spindled/bootstrap.go
// factors stage registration out of main so it is not repeated per binary.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"clipline/internal/adapters"
	"clipline/internal/config"
	"clipline/internal/export"
	"clipline/internal/fileutil"
	"clipline/internal/llmrouter"
	"clipline/internal/model"
	"clipline/internal/notifications"
	"clipline/internal/pipeline"
	"clipline/internal/pipelineerr"
	"clipline/internal/resource"
	"clipline/internal/translate"
)

// Bundle owns every long-lived resource wiring constructs, so callers can
// release them in one place on shutdown.
type Bundle struct {
	Coordinator *pipeline.Coordinator
	Notifier    notifications.Service
	monitor     *resource.Monitor
	store       *export.Store
}

// Close stops the resource monitor and closes the export store. Safe to
// call once after the bundle is no longer needed.
func (b *Bundle) Close() error {
	if b.monitor != nil {
		b.monitor.Stop()
	}
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// whisperModelEnv names the environment variable pointing at a whisper.cpp
// ggml model file. Config carries no field for it because model choice is
// an operator/host concern (which model is installed where), not a
// pipeline-behavior knob the way LLM routing or retry budgets are.
const whisperModelEnv = "CLIPLINE_WHISPER_MODEL"

// Build wires a Coordinator against real external tools: yt-dlp for fetch,
// ffmpeg for audio extraction and editing, whisper.cpp for transcription,
// Ollama and OpenRouter for the two LLM tiers, and a SQLite-backed export
// batcher. ctx governs the resource monitor's background sampling loop,
// not any individual pipeline run.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, onProgress pipeline.ProgressFunc, selector pipeline.Selector) (*Bundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("wiring: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	notifier := notifications.NewService(cfg)

	monitor := resource.NewMonitor()
	monitor.Start(ctx)
	gate := resource.NewGate(cfg.Resource, monitor)

	fetcher := adapters.NewYtDlpFetcher("yt-dlp")
	audioExtractor := adapters.NewFFmpegAudioExtractor("ffmpeg")

	modelPath := os.Getenv(whisperModelEnv)
	if modelPath == "" {
		modelPath = filepath.Join(cfg.StateDir("models"), "ggml-base.en.bin")
	}
	transcriber := adapters.NewWhisperCppTranscriber("whisper-cli", modelPath, cfg.StateDir("cache"))

	providers := map[llmrouter.Tier]llmrouter.Provider{
		llmrouter.TierLocal: adapters.NewOllamaProvider(
			cfg.LLM.Local.BaseURL, cfg.LLM.Local.Model, time.Duration(cfg.LLM.Local.TimeoutSeconds)*time.Second),
	}
	if cfg.LLM.Remote.Model != "" {
		providers[llmrouter.TierRemote] = adapters.NewOpenRouterProvider(
			config.ResolveAPIKey(cfg.LLM.Remote), cfg.LLM.Remote.BaseURL, cfg.LLM.Remote.Model,
			time.Duration(cfg.LLM.Remote.TimeoutSeconds)*time.Second)
	}
	router := llmrouter.New(cfg.LLM, providers, logger)
	translator := translate.New(cfg.Translation, router, logger)

	subtitleWriter := adapters.NewFileSubtitleWriter()
	videoEditor := adapters.NewFFmpegVideoEditor("ffmpeg", "ffprobe")

	store, err := export.OpenStore(filepath.Join(cfg.StateDir("exports"), "exports.db"))
	if err != nil {
		monitor.Stop()
		return nil, fmt.Errorf("open export store: %w", err)
	}

	exporter := export.New(gate, store, copyToExportDir, logger)

	deps := pipeline.Deps{
		Config:         cfg,
		Fetcher:        fetcher,
		AudioExtractor: audioExtractor,
		Transcriber:    transcriber,
		Router:         router,
		Translator:     translator,
		SubtitleWriter: subtitleWriter,
		VideoEditor:    videoEditor,
		Exporter:       exporter,
		Monitor:        monitor,
		Gate:           gate,
		Notifier:       notifier,
		CheckpointDir:  cfg.StateDir("checkpoints"),
		TempDir:        cfg.StateDir("work"),
		ExportDir:      cfg.StateDir("exports"),
		Selector:       selector,
		OnProgress:     onProgress,
	}

	return &Bundle{
		Coordinator: pipeline.New(deps, logger),
		Notifier:    notifier,
		monitor:     monitor,
		store:       store,
	}, nil
}

// copyToExportDir is the export.ExportFunc every BatchExporter uses: the
// heavy lifting (transcoding, subtitle burn-in) already happened in the
// EDIT_VIDEO and GENERATE_SUBTITLES stages, so exporting a plan item is a
// verified file copy to its target location. Verification matters here more
// than in a temp-to-temp copy: export targets often land on removable or
// network storage, and a silently truncated multi-gigabyte video is worse
// than a loud failure.
func copyToExportDir(_ context.Context, _ model.RunID, item model.ExportPlanItem) (model.ExportedFile, error) {
	if item.SourcePath == "" {
		return model.ExportedFile{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageExport, "export.copy",
			"plan item has no source path", nil)
	}
	if err := os.MkdirAll(filepath.Dir(item.TargetPath), 0o755); err != nil {
		return model.ExportedFile{}, err
	}

	if err := fileutil.CopyFileVerified(item.SourcePath, item.TargetPath); err != nil {
		return model.ExportedFile{}, pipelineerr.Wrap(pipelineerr.ErrTransientNetwork, model.StageExport, "export.copy",
			"copy to export directory failed", err)
	}

	info, err := os.Stat(item.TargetPath)
	if err != nil {
		return model.ExportedFile{}, err
	}

	return model.ExportedFile{Type: item.Type, Path: item.TargetPath, Bytes: info.Size()}, nil
}
