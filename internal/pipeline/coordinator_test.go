package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"clipline/internal/adapters"
	"clipline/internal/checkpoint"
	"clipline/internal/export"
	"clipline/internal/llmrouter"
	"clipline/internal/model"
	"clipline/internal/testsupport"
	"clipline/internal/translate"
)

// The fakes below stand in for the six subprocess-backed adapters.Fetcher /
// AudioExtractor / Transcriber / SubtitleWriter / VideoEditor collaborators
// and the llmrouter.Provider a real local or remote model would satisfy, so
// a full Coordinator.execute run can be driven end to end without shelling
// out to yt-dlp, ffmpeg, whisper.cpp, or a live LLM endpoint.

type fakeFetcher struct {
	video model.VideoArtifact
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL, outputDir, quality string) (model.VideoArtifact, error) {
	return f.video, nil
}

type blockingFetcher struct {
	started chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, sourceURL, outputDir, quality string) (model.VideoArtifact, error) {
	f.once.Do(func() { close(f.started) })
	<-ctx.Done()
	return model.VideoArtifact{}, ctx.Err()
}

type fakeAudioExtractor struct{}

func (fakeAudioExtractor) ExtractAudio(ctx context.Context, videoPath, outputDir string) (model.AudioArtifact, error) {
	return model.AudioArtifact{Path: filepath.Join(outputDir, "audio.wav"), SampleRateHz: 16000, Channels: 1}, nil
}

type countingAudioExtractor struct {
	mu    sync.Mutex
	calls int
}

func (c *countingAudioExtractor) ExtractAudio(ctx context.Context, videoPath, outputDir string) (model.AudioArtifact, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return model.AudioArtifact{}, nil
}

func (c *countingAudioExtractor) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeTranscriber struct {
	result model.TranscriptionResult
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, opts adapters.TranscribeOptions) (model.TranscriptionResult, error) {
	return f.result, nil
}

type fakeSubtitleWriter struct{}

func (fakeSubtitleWriter) Write(ctx context.Context, segments []model.TranslatedSegment, style adapters.SubtitleStyle, format adapters.SubtitleFormat, outputPath string) (string, error) {
	return outputPath, nil
}

type fakeVideoEditor struct{}

func (fakeVideoEditor) Edit(ctx context.Context, videoPath string, segments []model.EditSegment, cfg adapters.EditOutputConfig) (adapters.EditedVideo, error) {
	return adapters.EditedVideo{Path: cfg.OutputPath, Duration: 30 * time.Second, Bytes: 4096}, nil
}

// promptSegmentRE pulls {"id":N,"text":"..."} pairs out of the prompt
// buildChunkPrompt marshals, mirroring what a real model reads from the
// prompt body rather than special-casing the caller's Go types.
var promptSegmentRE = regexp.MustCompile(`"id":(\d+),"text":"([^"]*)"`)

// fakeLLMProvider answers highlight, chapter, and translation requests by
// matching on the fixed instruction text each pipeline stage sends, and
// for translation, by echoing a caller-supplied word map back keyed on the
// segment ids present in the prompt.
type fakeLLMProvider struct {
	translations map[string]string

	mu             sync.Mutex
	translateCalls int
}

func (f *fakeLLMProvider) Generate(ctx context.Context, prompt string, opts llmrouter.GenerateOptions) (llmrouter.GenerateResult, error) {
	switch {
	case strings.Contains(prompt, "highlight-worthy"):
		return llmrouter.GenerateResult{Text: `{"highlights":[{"start_segment_id":1,"end_segment_id":3,"score":80,"reason":"f","category":"funny","suggested_title":"t"}]}`}, nil
	case strings.Contains(prompt, "non-overlapping chapters"):
		return llmrouter.GenerateResult{Text: `{"chapters":[{"id":1,"start_s":1,"end_s":3,"title":"Ch","summary":"s","segment_ids":[1,2,3]}]}`}, nil
	case strings.Contains(prompt, "Translate the following transcript segments"):
		f.mu.Lock()
		f.translateCalls++
		f.mu.Unlock()

		matches := promptSegmentRE.FindAllStringSubmatch(prompt, -1)
		translations := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			var id int
			fmt.Sscanf(m[1], "%d", &id)
			text := m[2]
			out := text + "_untranslated"
			if t, ok := f.translations[text]; ok {
				out = t
			}
			translations = append(translations, map[string]any{"id": id, "text": out})
		}
		body, _ := json.Marshal(map[string]any{"translations": translations})
		return llmrouter.GenerateResult{Text: string(body)}, nil
	default:
		return llmrouter.GenerateResult{}, fmt.Errorf("fakeLLMProvider: unrecognized prompt %q", prompt)
	}
}

func (f *fakeLLMProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.translateCalls
}

func noopExportFn(ctx context.Context, runID model.RunID, item model.ExportPlanItem) (model.ExportedFile, error) {
	return model.ExportedFile{Type: item.Type, Path: item.TargetPath, Bytes: 2048}, nil
}

// TestCoordinatorRunHappyPathS1 drives a fresh run through every stage with
// the exact fixture values spec.md's S1 scenario names: a 3-segment
// transcript, one highlight, one chapter, and a remote translation from
// English to Japanese.
func TestCoordinatorRunHappyPathS1(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Translation.SourceLanguage = "en"
	cfg.Translation.TargetLanguage = "ja"
	cfg.LLM.Routing.HighlightDetection = "local"
	cfg.LLM.Routing.ChapterDetection = "local"
	cfg.LLM.Routing.Translation = "remote"

	provider := &fakeLLMProvider{translations: map[string]string{
		"hello": "こんにちは",
		"world": "世界",
		"bye":   "さようなら",
	}}
	router := llmrouter.New(cfg.LLM, map[llmrouter.Tier]llmrouter.Provider{
		llmrouter.TierLocal:  provider,
		llmrouter.TierRemote: provider,
	}, nil)
	translator := translate.New(cfg.Translation, router, nil)

	video := model.VideoArtifact{
		Path:     filepath.Join(t.TempDir(), "video.mp4"),
		Metadata: model.VideoMetadata{Title: "Happy Video"},
		Duration: 30 * time.Second,
	}
	transcription := model.TranscriptionResult{
		Segments: []model.Segment{
			{ID: 1, StartS: 0, EndS: 10, Text: "hello"},
			{ID: 2, StartS: 10, EndS: 20, Text: "world"},
			{ID: 3, StartS: 20, EndS: 30, Text: "bye"},
		},
		Duration: 30 * time.Second,
	}

	exportStore := testsupport.MustOpenExportStore(t, t.TempDir())
	exporter := export.New(nil, exportStore, noopExportFn, nil)

	deps := Deps{
		Config:         cfg,
		Fetcher:        &fakeFetcher{video: video},
		AudioExtractor: fakeAudioExtractor{},
		Transcriber:    &fakeTranscriber{result: transcription},
		Router:         router,
		Translator:     translator,
		SubtitleWriter: fakeSubtitleWriter{},
		VideoEditor:    fakeVideoEditor{},
		Exporter:       exporter,
		CheckpointDir:  cfg.StateDir("checkpoints"),
		TempDir:        t.TempDir(),
		ExportDir:      cfg.StateDir("exports"),
	}

	coord := New(deps, nil)
	runID := model.NewRunID()
	now := time.Now().UTC()
	initial := model.Checkpoint{RunID: runID, Stage: model.StageFetch, CreatedAt: now, UpdatedAt: now}

	project, err := coord.execute(context.Background(), runID, "https://example.test/v?id=HAPPY", initial)
	if err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	if len(project.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(project.Segments))
	}
	if len(project.TranslatedSegments) != 3 {
		t.Fatalf("expected 3 translated segments, got %d", len(project.TranslatedSegments))
	}
	if len(project.Chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(project.Chapters))
	}
	if len(project.Highlights) != 1 {
		t.Fatalf("expected 1 highlight, got %d", len(project.Highlights))
	}

	wantTranslations := map[int]string{1: "こんにちは", 2: "世界", 3: "さようなら"}
	for _, seg := range project.TranslatedSegments {
		if want := wantTranslations[seg.ID]; seg.Translated != want {
			t.Fatalf("segment %d: expected translation %q, got %q", seg.ID, want, seg.Translated)
		}
	}

	checkpointPath := filepath.Join(deps.CheckpointDir, string(runID)+".json")
	if _, err := os.Stat(checkpointPath); !os.IsNotExist(err) {
		t.Fatalf("expected checkpoint to be deleted after success, stat err: %v", err)
	}
}

// TestCoordinatorResumeAfterCancelDuringTranslateS2 exercises spec.md's S2
// scenario: a checkpoint left mid TRANSLATE stage after two of five chunks
// completed must resume without re-sending those chunks to the LLM.
func TestCoordinatorResumeAfterCancelDuringTranslateS2(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Translation.SourceLanguage = "en"
	cfg.Translation.TargetLanguage = "ja"
	cfg.Translation.MaxTokensPerRequest = 1
	cfg.Translation.OverlapSegments = 0
	cfg.LLM.Routing.Translation = "remote"

	provider := &fakeLLMProvider{translations: map[string]string{
		"three": "thr-ja",
		"four":  "four-ja",
		"five":  "five-ja",
	}}
	router := llmrouter.New(cfg.LLM, map[llmrouter.Tier]llmrouter.Provider{
		llmrouter.TierLocal:  provider,
		llmrouter.TierRemote: provider,
	}, nil)
	translator := translate.New(cfg.Translation, router, nil)

	segments := []model.Segment{
		{ID: 1, StartS: 0, EndS: 1, Text: "one"},
		{ID: 2, StartS: 1, EndS: 2, Text: "two"},
		{ID: 3, StartS: 2, EndS: 3, Text: "three"},
		{ID: 4, StartS: 3, EndS: 4, Text: "four"},
		{ID: 5, StartS: 4, EndS: 5, Text: "five"},
	}

	exportStore := testsupport.MustOpenExportStore(t, t.TempDir())
	exporter := export.New(nil, exportStore, noopExportFn, nil)

	tempDir := t.TempDir()
	deps := Deps{
		Config:         cfg,
		Fetcher:        &fakeFetcher{},
		AudioExtractor: fakeAudioExtractor{},
		Transcriber:    &fakeTranscriber{},
		Router:         router,
		Translator:     translator,
		SubtitleWriter: fakeSubtitleWriter{},
		VideoEditor:    fakeVideoEditor{},
		Exporter:       exporter,
		CheckpointDir:  cfg.StateDir("checkpoints"),
		TempDir:        tempDir,
		ExportDir:      cfg.StateDir("exports"),
	}

	runID := model.NewRunID()

	// Seed the artifacts a real crash mid TRANSLATE would already have
	// persisted: the video and transcription from earlier stages, an edit
	// selection so EDIT_VIDEO has something to encode, and two segments
	// already translated before the cancel.
	artifacts := newArtifactStore(tempDir, runID)
	video := model.VideoArtifact{Path: filepath.Join(tempDir, "video.mp4"), Metadata: model.VideoMetadata{Title: "Resume Video"}}
	if err := artifacts.save("video", video); err != nil {
		t.Fatalf("seed video artifact: %v", err)
	}
	if err := artifacts.save("transcription", model.TranscriptionResult{Segments: segments}); err != nil {
		t.Fatalf("seed transcription artifact: %v", err)
	}
	editSegments := []model.EditSegment{{ID: 0, StartS: 0, EndS: 5, Transition: model.TransitionCut, Speed: 1.0}}
	if err := artifacts.save("edit_segments", editSegments); err != nil {
		t.Fatalf("seed edit_segments artifact: %v", err)
	}
	precomputed := map[int]model.TranslatedSegment{
		1: {ID: 1, Original: "one", Translated: "one-cached", StartS: 0, EndS: 1, Confidence: 1.0},
		2: {ID: 2, Original: "two", Translated: "two-cached", StartS: 1, EndS: 2, Confidence: 1.0},
	}
	if err := artifacts.save(translatePartialArtifact, precomputed); err != nil {
		t.Fatalf("seed translate_partial artifact: %v", err)
	}

	store := checkpoint.NewStore(deps.CheckpointDir)
	if err := store.Open(runID); err != nil {
		t.Fatalf("open checkpoint store: %v", err)
	}
	now := time.Now().UTC()
	seeded := model.Checkpoint{
		RunID:          runID,
		Stage:          model.StageTranslate,
		StageProgress:  0.4,
		CompletedItems: []string{"chunk_0", "chunk_1"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.Save(seeded); err != nil {
		t.Fatalf("save seeded checkpoint: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close checkpoint store: %v", err)
	}

	coord := New(deps, nil)
	project, err := coord.RunFromCheckpoint(context.Background(), runID)
	if err != nil {
		t.Fatalf("RunFromCheckpoint returned error: %v", err)
	}

	if got := provider.callCount(); got != 3 {
		t.Fatalf("expected 3 translation calls (chunks 2-4), got %d", got)
	}
	if len(project.TranslatedSegments) != 5 {
		t.Fatalf("expected 5 translated segments, got %d", len(project.TranslatedSegments))
	}

	want := map[int]string{
		1: "one-cached",
		2: "two-cached",
		3: "thr-ja",
		4: "four-ja",
		5: "five-ja",
	}
	for _, seg := range project.TranslatedSegments {
		if got := seg.Translated; got != want[seg.ID] {
			t.Fatalf("segment %d: expected translation %q, got %q", seg.ID, want[seg.ID], got)
		}
	}
}

// TestCoordinatorCancelStopsBeforeLaterStages covers invariant 5: once
// Cancel() unblocks a stage waiting on ctx, drive() must fail out of that
// stage rather than advance, so no later stage's subprocess ever launches.
func TestCoordinatorCancelStopsBeforeLaterStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	fetcher := &blockingFetcher{started: make(chan struct{})}
	audio := &countingAudioExtractor{}

	deps := Deps{
		Config:         cfg,
		Fetcher:        fetcher,
		AudioExtractor: audio,
		CheckpointDir:  cfg.StateDir("checkpoints"),
		TempDir:        t.TempDir(),
		ExportDir:      cfg.StateDir("exports"),
	}

	coord := New(deps, nil)
	runID := model.NewRunID()
	now := time.Now().UTC()
	initial := model.Checkpoint{RunID: runID, Stage: model.StageFetch, CreatedAt: now, UpdatedAt: now}

	done := make(chan error, 1)
	go func() {
		_, err := coord.execute(context.Background(), runID, "https://example.test/v?id=CANCEL", initial)
		done <- err
	}()

	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fetch to start")
	}

	coord.Cancel(runID)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected execute to return an error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for execute to return after cancel")
	}

	if calls := audio.callCount(); calls != 0 {
		t.Fatalf("expected EXTRACT_AUDIO to never run after cancel, got %d calls", calls)
	}
}
