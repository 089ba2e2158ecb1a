package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"clipline/internal/adapters"
	"clipline/internal/export"
	"clipline/internal/llmrouter"
	"clipline/internal/model"
	"clipline/internal/notifications"
	"clipline/internal/pipelineerr"
	"clipline/internal/resource"
	"clipline/internal/stagerunner"
	"clipline/internal/textutil"
	"clipline/internal/translate"
)

// gateAcquireTimeout bounds how long a subprocess-launching stage waits for
// resource admission before failing the stage as resource-exhausted.
const gateAcquireTimeout = 5 * time.Minute

// acquireGate admits stage's subprocess launch through the coordinator's
// resource.Gate, per spec §4.8's requirement that every stage shelling out
// to an external tool (yt-dlp, ffmpeg, whisper.cpp) competes for the same
// CPU/memory/GPU ceilings export already respects. A nil Gate (e.g. a test
// harness that omits resource monitoring) admits unconditionally.
func (r *runExecution) acquireGate(ctx context.Context, stage model.Stage) (*resource.Ticket, error) {
	gate := r.coord.deps.Gate
	if gate == nil {
		return nil, nil
	}
	ticket, err := gate.AcquireWithTimeout(ctx, resource.StageForJobKind(stage), gateAcquireTimeout)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.ErrResourceExhausted, stage, "pipeline.gate", "resource admission failed", err)
	}
	return ticket, nil
}

// drive advances r's run from its checkpoint's current stage through
// StageCompleted, persisting a checkpoint after every stage transition and
// reloading any artifact a prior attempt already produced.
func (r *runExecution) drive(ctx context.Context) (model.Project, error) {
	c := r.coord

	var (
		video         model.VideoArtifact
		audio         model.AudioArtifact
		transcription model.TranscriptionResult
		analysis      model.AnalysisResult
		editSegments  []model.EditSegment
		translated    []model.TranslatedSegment
		subtitlePath  string
		edited        adapters.EditedVideo
	)
	_, _ = r.artifacts.load("video", &video)
	_, _ = r.artifacts.load("audio", &audio)
	_, _ = r.artifacts.load("transcription", &transcription)
	_, _ = r.artifacts.load("analysis", &analysis)
	_, _ = r.artifacts.load("edit_segments", &editSegments)
	_, _ = r.artifacts.load("translated", &translated)
	_, _ = r.artifacts.load("subtitle_path", &subtitlePath)
	_, _ = r.artifacts.load("edited_video", &edited)

	stage := r.checkpoint.Stage
	if stage == model.StagePending || stage == "" {
		stage = model.StageFetch
		if err := r.advanceStage(stage); err != nil {
			return model.Project{}, err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return model.Project{}, pipelineerr.Wrap(pipelineerr.ErrCancelled, stage, "pipeline.drive", "run cancelled", ctx.Err())
		default:
		}

		var stageErr error
		switch stage {
		case model.StageFetch:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				v, err := r.runFetch(ctx)
				if err != nil {
					return err
				}
				video = v
				return r.artifacts.save("video", video)
			})
		case model.StageExtractAudio:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				a, err := r.runExtractAudio(ctx, video)
				if err != nil {
					return err
				}
				audio = a
				return r.artifacts.save("audio", audio)
			})
		case model.StageTranscribe:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				t, err := r.runTranscribe(ctx, audio)
				if err != nil {
					return err
				}
				transcription = t
				return r.artifacts.save("transcription", transcription)
			})
		case model.StageAnalyze:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				a, err := r.runAnalyze(ctx, transcription)
				if err != nil {
					return err
				}
				analysis = a
				return r.artifacts.save("analysis", analysis)
			})
		case model.StageAwaitUserSelection:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				segs, err := r.runAwaitSelection(ctx, analysis, transcription.Segments)
				if err != nil {
					return err
				}
				editSegments = segs
				return r.artifacts.save("edit_segments", editSegments)
			})
		case model.StageTranslate:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				t, err := r.runTranslate(ctx, transcription.Segments)
				if err != nil {
					return err
				}
				translated = t
				return r.artifacts.save("translated", translated)
			})
		case model.StageGenerateSubtitles:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				p, err := r.runGenerateSubtitles(ctx, translated)
				if err != nil {
					return err
				}
				subtitlePath = p
				return r.artifacts.save("subtitle_path", subtitlePath)
			})
		case model.StageEditVideo:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				e, err := r.runEditVideo(ctx, video, editSegments, subtitlePath)
				if err != nil {
					return err
				}
				edited = e
				return r.artifacts.save("edited_video", edited)
			})
		case model.StageExport:
			stageErr = c.withStageRetry(ctx, stage, func() error {
				result, err := r.runExport(ctx, video, edited, subtitlePath)
				if err != nil {
					return err
				}
				return r.artifacts.save("export_result", result)
			})
		case model.StageCompleted:
			return model.Project{
				RunID:              r.runID,
				Segments:           transcription.Segments,
				TranslatedSegments: translated,
				Highlights:         analysis.Highlights,
				Chapters:           analysis.Chapters,
				Videos:             []model.VideoArtifact{video},
				Summary:            analysis.Summary,
			}, nil
		default:
			return model.Project{}, fmt.Errorf("pipeline: unknown stage %q", stage)
		}

		if stageErr != nil {
			return model.Project{}, pipelineerr.NewPipelineError(stage, stageErr, "")
		}

		next, ok := model.Next(stage)
		if !ok {
			return model.Project{}, fmt.Errorf("pipeline: no successor stage for %q", stage)
		}
		if err := r.advanceStage(next); err != nil {
			return model.Project{}, err
		}
		stage = next
	}
}

func (r *runExecution) runFetch(ctx context.Context) (model.VideoArtifact, error) {
	c := r.coord
	if r.sourceURL == "" {
		return model.VideoArtifact{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageFetch, "pipeline.fetch",
			"resume has no cached video artifact and no source URL to refetch", nil)
	}
	c.notify(ctx, notifications.EventFetchStarted, notifications.Payload{"run_id": string(r.runID), "source_url": r.sourceURL})

	ticket, err := r.acquireGate(ctx, model.StageFetch)
	if err != nil {
		return model.VideoArtifact{}, err
	}
	defer ticket.Release()

	var result model.VideoArtifact
	_, err = stagerunner.Run(ctx, []string{"video"}, func(ctx context.Context, item string) (any, error) {
		outDir := filepath.Join(c.deps.TempDir, string(r.runID))
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, err
		}
		v, err := c.deps.Fetcher.Fetch(ctx, r.sourceURL, outDir, "best")
		if err != nil {
			return nil, err
		}
		result = v
		return v, nil
	}, r.checkpoint, stagerunner.Options{
		OnProgress: func(p float64, item string) {
			c.reportProgress(r.runID, model.StageFetch, r.completedWeight(), p, "fetching video")
		},
		OnItemDone: r.checkpointHook(),
	})
	if err != nil {
		return model.VideoArtifact{}, err
	}
	c.notify(ctx, notifications.EventFetchCompleted, notifications.Payload{"run_id": string(r.runID), "video_title": result.Metadata.Title})
	return result, nil
}

func (r *runExecution) runExtractAudio(ctx context.Context, video model.VideoArtifact) (model.AudioArtifact, error) {
	c := r.coord

	ticket, err := r.acquireGate(ctx, model.StageExtractAudio)
	if err != nil {
		return model.AudioArtifact{}, err
	}
	defer ticket.Release()

	var result model.AudioArtifact
	_, err = stagerunner.Run(ctx, []string{"audio"}, func(ctx context.Context, item string) (any, error) {
		outDir := filepath.Join(c.deps.TempDir, string(r.runID))
		a, err := c.deps.AudioExtractor.ExtractAudio(ctx, video.Path, outDir)
		if err != nil {
			return nil, err
		}
		result = a
		return a, nil
	}, r.checkpoint, stagerunner.Options{
		OnProgress: func(p float64, item string) {
			c.reportProgress(r.runID, model.StageExtractAudio, r.completedWeight(), p, "extracting audio")
		},
		OnItemDone: r.checkpointHook(),
	})
	return result, err
}

func (r *runExecution) runTranscribe(ctx context.Context, audio model.AudioArtifact) (model.TranscriptionResult, error) {
	c := r.coord
	c.notify(ctx, notifications.EventTranscriptionStarted, notifications.Payload{"run_id": string(r.runID)})

	ticket, err := r.acquireGate(ctx, model.StageTranscribe)
	if err != nil {
		return model.TranscriptionResult{}, err
	}
	defer ticket.Release()

	var result model.TranscriptionResult
	_, err = stagerunner.Run(ctx, []string{"transcript"}, func(ctx context.Context, item string) (any, error) {
		t, err := c.deps.Transcriber.Transcribe(ctx, audio.Path, adapters.TranscribeOptions{})
		if err != nil {
			return nil, err
		}
		result = t
		return t, nil
	}, r.checkpoint, stagerunner.Options{
		OnProgress: func(p float64, item string) {
			c.reportProgress(r.runID, model.StageTranscribe, r.completedWeight(), p, "transcribing")
		},
		OnItemDone: r.checkpointHook(),
	})
	if err != nil {
		return model.TranscriptionResult{}, err
	}
	c.notify(ctx, notifications.EventTranscriptionCompleted, notifications.Payload{
		"run_id":        string(r.runID),
		"segment_count": fmt.Sprint(len(result.Segments)),
	})
	return result, nil
}

var (
	highlightsSchema = llmrouter.Schema{Name: "highlights", RequiredFields: []string{"highlights"}}
	chaptersSchema   = llmrouter.Schema{Name: "chapters", RequiredFields: []string{"chapters"}}
)

func (r *runExecution) runAnalyze(ctx context.Context, transcription model.TranscriptionResult) (model.AnalysisResult, error) {
	c := r.coord
	var analysis model.AnalysisResult
	if len(transcription.Segments) == 0 {
		return analysis, nil
	}

	_, err := stagerunner.Run(ctx, []string{"highlights", "chapters"}, func(ctx context.Context, item string) (any, error) {
		switch item {
		case "highlights":
			highlights, err := c.detectHighlights(ctx, transcription.Segments)
			if err != nil {
				return nil, err
			}
			analysis.Highlights = highlights
			return highlights, nil
		case "chapters":
			chapters, err := c.detectChapters(ctx, transcription.Segments)
			if err != nil {
				return nil, err
			}
			analysis.Chapters = chapters
			return chapters, nil
		default:
			return nil, fmt.Errorf("pipeline: unknown analyze item %q", item)
		}
	}, r.checkpoint, stagerunner.Options{
		OnProgress: func(p float64, item string) {
			c.reportProgress(r.runID, model.StageAnalyze, r.completedWeight(), p, "analyzing "+item)
		},
		OnItemDone: r.checkpointHook(),
	})
	if err != nil {
		return model.AnalysisResult{}, err
	}
	c.notify(ctx, notifications.EventAnalysisCompleted, notifications.Payload{
		"run_id":          string(r.runID),
		"highlight_count": fmt.Sprint(len(analysis.Highlights)),
	})
	return analysis, nil
}

func (c *Coordinator) detectHighlights(ctx context.Context, segments []model.Segment) ([]model.Highlight, error) {
	prompt := buildTranscriptPrompt(segments,
		"Identify the most engaging highlight-worthy spans of this transcript. "+
			"Return JSON: {\"highlights\":[{\"start_segment_id\":int,\"end_segment_id\":int,\"score\":number 0-100,\"reason\":string,\"category\":string,\"suggested_title\":string}]}.")
	parsed, err := c.deps.Router.Execute(ctx, llmrouter.TaskHighlightDetection, prompt, highlightsSchema)
	if err != nil {
		return nil, err
	}
	raw, ok := parsed["highlights"].([]any)
	if !ok {
		return nil, pipelineerr.Wrap(pipelineerr.ErrParseFailure, model.StageAnalyze, "pipeline.analyze.highlights", "response missing highlights array", nil)
	}
	highlights := make([]model.Highlight, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		highlights = append(highlights, model.Highlight{
			StartSegmentID: intField(m, "start_segment_id"),
			EndSegmentID:   intField(m, "end_segment_id"),
			Score:          floatField(m, "score"),
			Reason:         stringField(m, "reason"),
			Category:       stringField(m, "category"),
			SuggestedTitle: stringField(m, "suggested_title"),
		})
	}
	return dedupeHighlights(highlights), nil
}

// dedupeHighlightSimilarity is the cosine-similarity threshold above which
// two highlights are treated as the same moment described twice.
const dedupeHighlightSimilarity = 0.82

// dedupeHighlights drops highlights whose suggested title and reason text
// are near-duplicates of a higher-scoring highlight already kept, catching
// the case where an LLM response lists the same moment twice under
// different wording. Highlights are compared in descending score order so
// the kept copy is always the best-scored one.
func dedupeHighlights(highlights []model.Highlight) []model.Highlight {
	if len(highlights) < 2 {
		return highlights
	}
	ordered := make([]model.Highlight, len(highlights))
	copy(ordered, highlights)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	kept := make([]model.Highlight, 0, len(ordered))
	fingerprints := make([]*textutil.Fingerprint, 0, len(ordered))
	for _, h := range ordered {
		fp := textutil.NewFingerprint(h.SuggestedTitle + " " + h.Reason)
		duplicate := false
		for _, existing := range fingerprints {
			if textutil.CosineSimilarity(fp, existing) >= dedupeHighlightSimilarity {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, h)
		fingerprints = append(fingerprints, fp)
	}
	return kept
}

func (c *Coordinator) detectChapters(ctx context.Context, segments []model.Segment) ([]model.Chapter, error) {
	prompt := buildTranscriptPrompt(segments,
		"Split this transcript into non-overlapping chapters covering every segment exactly once. "+
			"Return JSON: {\"chapters\":[{\"id\":int,\"start_s\":number,\"end_s\":number,\"title\":string,\"summary\":string,\"segment_ids\":[int]}]}.")
	parsed, err := c.deps.Router.Execute(ctx, llmrouter.TaskChapterDetection, prompt, chaptersSchema)
	if err != nil {
		return nil, err
	}
	raw, ok := parsed["chapters"].([]any)
	if !ok {
		return nil, pipelineerr.Wrap(pipelineerr.ErrParseFailure, model.StageAnalyze, "pipeline.analyze.chapters", "response missing chapters array", nil)
	}
	chapters := make([]model.Chapter, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		chapters = append(chapters, model.Chapter{
			ID:         intField(m, "id"),
			StartS:     floatField(m, "start_s"),
			EndS:       floatField(m, "end_s"),
			Title:      stringField(m, "title"),
			Summary:    stringField(m, "summary"),
			SegmentIDs: intSliceField(m, "segment_ids"),
		})
	}
	return chapters, nil
}

func buildTranscriptPrompt(segments []model.Segment, instruction string) string {
	var b []byte
	b = append(b, instruction...)
	b = append(b, "\n\nTranscript segments:\n"...)
	for _, s := range segments {
		b = append(b, fmt.Sprintf("[%d] %.2f-%.2f: %s\n", s.ID, s.StartS, s.EndS, s.Text)...)
	}
	return string(b)
}

func intField(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intSliceField(m map[string]any, key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// defaultSelector turns every highlight into a straight-cut edit segment
// when the caller supplies no interactive Selector, so an unattended run
// still produces a usable export.
func defaultSelector(_ context.Context, analysis model.AnalysisResult, segments []model.Segment) ([]model.EditSegment, error) {
	byID := make(map[int]model.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}

	out := make([]model.EditSegment, 0, len(analysis.Highlights))
	for i, h := range analysis.Highlights {
		start, ok1 := byID[h.StartSegmentID]
		end, ok2 := byID[h.EndSegmentID]
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, model.EditSegment{
			ID:         i,
			StartS:     start.StartS,
			EndS:       end.EndS,
			Title:      h.SuggestedTitle,
			Transition: model.TransitionCut,
			Speed:      1.0,
		})
	}
	if len(out) == 0 && len(segments) > 0 {
		out = append(out, model.EditSegment{
			ID:         0,
			StartS:     segments[0].StartS,
			EndS:       segments[len(segments)-1].EndS,
			Transition: model.TransitionCut,
			Speed:      1.0,
		})
	}
	return out, nil
}

func (r *runExecution) runAwaitSelection(ctx context.Context, analysis model.AnalysisResult, segments []model.Segment) ([]model.EditSegment, error) {
	c := r.coord
	selector := c.deps.Selector
	if selector == nil {
		selector = defaultSelector
	}

	var result []model.EditSegment
	_, err := stagerunner.Run(ctx, []string{"selection"}, func(ctx context.Context, item string) (any, error) {
		segs, err := selector(ctx, analysis, segments)
		if err != nil {
			return nil, err
		}
		result = segs
		return segs, nil
	}, r.checkpoint, stagerunner.Options{OnItemDone: r.checkpointHook()})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		c.notify(ctx, notifications.EventNeedsReview, notifications.Payload{"run_id": string(r.runID)})
	}
	return result, nil
}

// translatePartialArtifact names the JSON sidecar holding translations
// merged so far, keyed by segment id. It is written after every chunk
// completes so a crash mid-stage does not force already-answered chunks
// back through the LLM on resume (spec.md's resume scenario S2).
const translatePartialArtifact = "translate_partial"

func (r *runExecution) runTranslate(ctx context.Context, segments []model.Segment) ([]model.TranslatedSegment, error) {
	c := r.coord
	if len(segments) == 0 {
		return nil, nil
	}

	minRate := 0.90
	if c.deps.Config != nil && c.deps.Config.Translation.MinSuccessRate > 0 {
		minRate = c.deps.Config.Translation.MinSuccessRate
	}

	chunks := c.deps.Translator.PrepareChunks(segments)
	items := make([]string, len(chunks))
	chunkByItem := make(map[string]translate.Chunk, len(chunks))
	for i, chunk := range chunks {
		item := fmt.Sprintf("chunk_%d", i)
		items[i] = item
		chunkByItem[item] = chunk
	}

	merged := map[int]model.TranslatedSegment{}
	if _, err := r.artifacts.load(translatePartialArtifact, &merged); err != nil {
		return nil, err
	}

	baseCheckpoint := r.checkpointHook()
	_, err := stagerunner.Run(ctx, items, func(ctx context.Context, item string) (any, error) {
		translated := c.deps.Translator.TranslateChunk(ctx, chunkByItem[item], item)
		for _, t := range translated {
			merged[t.ID] = t
		}
		return translated, nil
	}, r.checkpoint, stagerunner.Options{
		OnProgress: func(p float64, item string) {
			c.reportProgress(r.runID, model.StageTranslate, r.completedWeight(), p, "translating")
		},
		OnItemDone: func(item string, outcome stagerunner.ItemOutcome) error {
			if outcome.Err == nil {
				if err := r.artifacts.save(translatePartialArtifact, merged); err != nil {
					return err
				}
			}
			return baseCheckpoint(item, outcome)
		},
	})
	if err != nil {
		return nil, err
	}

	res := c.deps.Translator.FinalizeResult(segments, merged)
	combined := append(append([]model.TranslatedSegment{}, res.Successful...), res.Failed...)
	sort.Slice(combined, func(i, j int) bool { return combined[i].ID < combined[j].ID })

	if res.SuccessRate < minRate {
		return combined, pipelineerr.Wrap(pipelineerr.ErrPartialFailure, model.StageTranslate, "pipeline.translate",
			fmt.Sprintf("success rate %.2f below minimum %.2f", res.SuccessRate, minRate), nil)
	}
	c.notify(ctx, notifications.EventTranslationCompleted, notifications.Payload{
		"run_id":        string(r.runID),
		"segment_count": fmt.Sprint(len(combined)),
	})
	return combined, nil
}

func (r *runExecution) runGenerateSubtitles(ctx context.Context, translated []model.TranslatedSegment) (string, error) {
	c := r.coord
	if len(translated) == 0 {
		return "", nil
	}
	outPath := filepath.Join(c.deps.TempDir, string(r.runID), "subtitles.srt")

	var result string
	_, err := stagerunner.Run(ctx, []string{"subtitles"}, func(ctx context.Context, item string) (any, error) {
		p, err := c.deps.SubtitleWriter.Write(ctx, translated, adapters.SubtitleStyle{MinDurationS: 1.0}, adapters.SubtitleSRT, outPath)
		if err != nil {
			return nil, err
		}
		result = p
		return p, nil
	}, r.checkpoint, stagerunner.Options{OnItemDone: r.checkpointHook()})
	return result, err
}

func (r *runExecution) runEditVideo(ctx context.Context, video model.VideoArtifact, editSegments []model.EditSegment, subtitlePath string) (adapters.EditedVideo, error) {
	c := r.coord
	if len(editSegments) == 0 {
		return adapters.EditedVideo{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageEditVideo, "pipeline.edit",
			"no edit segments selected", nil)
	}
	outPath := filepath.Join(c.deps.TempDir, string(r.runID), "edited.mp4")

	ticket, err := r.acquireGate(ctx, model.StageEditVideo)
	if err != nil {
		return adapters.EditedVideo{}, err
	}
	defer ticket.Release()

	var result adapters.EditedVideo
	_, err = stagerunner.Run(ctx, []string{"edit"}, func(ctx context.Context, item string) (any, error) {
		e, err := c.deps.VideoEditor.Edit(ctx, video.Path, editSegments, adapters.EditOutputConfig{
			OutputPath:   outPath,
			SubtitlePath: subtitlePath,
		})
		if err != nil {
			return nil, err
		}
		result = e
		return e, nil
	}, r.checkpoint, stagerunner.Options{
		OnProgress: func(p float64, item string) {
			c.reportProgress(r.runID, model.StageEditVideo, r.completedWeight(), p, "encoding edit")
		},
		OnItemDone: r.checkpointHook(),
	})
	return result, err
}

func (r *runExecution) runExport(ctx context.Context, video model.VideoArtifact, edited adapters.EditedVideo, subtitlePath string) (model.ExportResult, error) {
	c := r.coord
	exportDir := filepath.Join(c.deps.ExportDir, string(r.runID))
	baseName := textutil.SanitizeFileName(video.Metadata.Title)
	if baseName == "" {
		baseName = textutil.SanitizeToken(string(r.runID))
	}

	plan := model.ExportPlan{RunID: r.runID, Items: []model.ExportPlanItem{
		{
			Type:           model.ExportFileFullVideo,
			SourcePath:     edited.Path,
			TargetPath:     filepath.Join(exportDir, baseName+filepath.Ext(edited.Path)),
			EstimatedBytes: edited.Bytes,
		},
	}}
	if subtitlePath != "" {
		plan.Items = append(plan.Items, model.ExportPlanItem{
			Type:       model.ExportFileSubtitle,
			SourcePath: subtitlePath,
			TargetPath: filepath.Join(exportDir, baseName+filepath.Ext(subtitlePath)),
		})
	}
	c.notify(ctx, notifications.EventExportStarted, notifications.Payload{"run_id": string(r.runID)})

	var result model.ExportResult
	_, err := stagerunner.Run(ctx, []string{"export_batch"}, func(ctx context.Context, item string) (any, error) {
		res, execErr := c.deps.Exporter.ExportBatch(ctx, plan, export.Policy{
			ContinueOnError: true,
			RetryFailed:     true,
			MaxRetries:      2,
			OnProgress: func(done, total int) {
				progress := 1.0
				if total > 0 {
					progress = float64(done) / float64(total)
				}
				c.reportProgress(r.runID, model.StageExport, r.completedWeight(), progress, "exporting")
			},
		})
		if execErr != nil {
			return nil, execErr
		}
		result = res
		return res, nil
	}, r.checkpoint, stagerunner.Options{OnItemDone: r.checkpointHook()})
	if err != nil {
		return model.ExportResult{}, err
	}
	c.notify(ctx, notifications.EventExportCompleted, notifications.Payload{
		"run_id":     string(r.runID),
		"successful": fmt.Sprint(result.Successful),
		"failed":     fmt.Sprint(result.Failed),
	})
	return result, nil
}

// checkpointHook builds the OnItemDone callback every single-item stage
// uses to persist item completion before moving on.
func (r *runExecution) checkpointHook() stagerunner.CheckpointFunc {
	return func(item string, outcome stagerunner.ItemOutcome) error {
		if outcome.Err != nil {
			return outcome.Err
		}
		return r.saveItemProgress(item, 1.0)
	}
}
