package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"clipline/internal/config"
	langnorm "clipline/internal/language"
	"clipline/internal/llmrouter"
	"clipline/internal/logging"
	"clipline/internal/model"
)

// translationSchema requires a top-level "translations" array; each element
// is expected to carry "id" and "text" but element-level shape is validated
// during response mapping rather than by the router's schema check.
var translationSchema = llmrouter.Schema{Name: "translation", RequiredFields: []string{"translations"}}

// Result is spec §4.6's PartialTranslationResult: segments that translated
// successfully, segments that did not (carrying quality_flags and the
// original text as a fallback), and the overall success rate.
type Result struct {
	Successful  []model.TranslatedSegment
	Failed      []model.TranslatedSegment
	SuccessRate float64
}

// Executor is the subset of llmrouter.Router that Batcher depends on,
// narrowed to an interface so batching policy can be tested without a live
// router.
type Executor interface {
	Execute(ctx context.Context, task llmrouter.TaskKind, prompt string, schema llmrouter.Schema) (map[string]any, error)
}

// Batcher partitions segments into token-bounded chunks, translates each via
// an Executor, retries individual segments from a failed chunk, and
// validates translation quality before returning.
type Batcher struct {
	cfg    config.Translation
	router Executor
	logger *slog.Logger
}

// New constructs a Batcher.
func New(cfg config.Translation, router Executor, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Batcher{cfg: cfg, router: router, logger: logging.NewComponentLogger(logger, "translate")}
}

// PrepareChunks applies the batcher's configured token budget and segment
// overlap to segments. Callers that need per-chunk checkpointing (this
// package's Translate is not one of them) drive PrepareChunks,
// TranslateChunk, and FinalizeResult themselves instead of calling
// Translate, so a chunk boundary can double as a resumable unit of work.
func (b *Batcher) PrepareChunks(segments []model.Segment) []Chunk {
	maxTokens := b.cfg.MaxTokensPerRequest
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return ChunkSegments(segments, maxTokens, b.cfg.OverlapSegments)
}

// TranslateChunk sends one chunk to the router, falling back to translating
// its segments individually if the chunk-level request fails. label is used
// only for logging (e.g. the caller's stagerunner item name). It never
// returns an error: a segment that cannot be translated even individually
// is simply absent from the result, and the caller fills the gap via
// FinalizeResult.
func (b *Batcher) TranslateChunk(ctx context.Context, chunk Chunk, label string) []model.TranslatedSegment {
	translated, err := b.translateChunk(ctx, chunk)
	if err != nil {
		b.logger.Warn("chunk translation failed, retrying segments individually",
			logging.String("chunk", label), logging.Error(err))
		translated = b.retryIndividually(ctx, chunk.Segments)
	}
	return translated
}

// FinalizeResult merges per-chunk translations (keyed by segment id, later
// writers winning per spec §4.6) against the full segment list, filling any
// segment absent from merged with a translation_failed fallback, and
// computes the overall success rate.
func (b *Batcher) FinalizeResult(segments []model.Segment, merged map[int]model.TranslatedSegment) Result {
	minSuccessRate := b.cfg.MinSuccessRate
	if minSuccessRate <= 0 {
		minSuccessRate = 0.90
	}

	complete := make(map[int]model.TranslatedSegment, len(segments))
	for id, t := range merged {
		complete[id] = t
	}
	for _, seg := range segments {
		if _, ok := complete[seg.ID]; !ok {
			complete[seg.ID] = failedSegment(seg)
		}
	}

	successful, failed := splitBySuccess(complete, segments)
	total := len(segments)
	rate := 1.0
	if total > 0 {
		rate = float64(len(successful)) / float64(total)
	}

	if rate < minSuccessRate {
		b.logger.Warn("translation success rate below threshold",
			logging.Float64("success_rate", rate), logging.Float64("min_success_rate", minSuccessRate))
	}

	return Result{Successful: successful, Failed: failed, SuccessRate: rate}
}

// Translate runs the full batching pipeline over segments in a single call
// and returns the merged, quality-validated result. It has no per-chunk
// persistence of its own; internal/pipeline's TRANSLATE stage instead
// drives PrepareChunks/TranslateChunk/FinalizeResult directly through
// stagerunner so a crash mid-translation does not re-send chunks the
// router already answered.
func (b *Batcher) Translate(ctx context.Context, segments []model.Segment) (Result, error) {
	chunks := b.PrepareChunks(segments)
	merged := map[int]model.TranslatedSegment{}

	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		translated := b.TranslateChunk(ctx, chunk, fmt.Sprintf("chunk_%d", i))
		// Dedup by id: later chunk's result wins, per spec §4.6.
		for _, t := range translated {
			merged[t.ID] = t
		}
	}

	return b.FinalizeResult(segments, merged), nil
}

func splitBySuccess(merged map[int]model.TranslatedSegment, order []model.Segment) (successful, failed []model.TranslatedSegment) {
	ids := make([]int, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	// Preserve input order rather than numeric id order when they diverge.
	rank := make(map[int]int, len(order))
	for i, s := range order {
		rank[s.ID] = i
	}
	sort.Slice(ids, func(i, j int) bool { return rank[ids[i]] < rank[ids[j]] })

	for _, id := range ids {
		t := merged[id]
		if t.HasFlag("translation_failed") {
			failed = append(failed, t)
		} else {
			successful = append(successful, t)
		}
	}
	return successful, failed
}

func failedSegment(seg model.Segment) model.TranslatedSegment {
	return model.TranslatedSegment{
		ID:           seg.ID,
		Original:     seg.Text,
		Translated:   seg.Text,
		StartS:       seg.StartS,
		EndS:         seg.EndS,
		QualityFlags: []string{"translation_failed"},
		Confidence:   0,
	}
}

// translateChunk sends one chunk to the router and maps the response back
// onto TranslatedSegment values, running quality validation on each.
func (b *Batcher) translateChunk(ctx context.Context, chunk Chunk) ([]model.TranslatedSegment, error) {
	prompt, err := buildChunkPrompt(chunk, b.cfg.SourceLanguage, b.cfg.TargetLanguage)
	if err != nil {
		return nil, err
	}

	parsed, err := b.router.Execute(ctx, llmrouter.TaskTranslation, prompt, translationSchema)
	if err != nil {
		return nil, err
	}

	texts, err := extractTranslations(parsed)
	if err != nil {
		return nil, err
	}

	bySeg := make(map[int]model.Segment, len(chunk.Segments))
	for _, seg := range chunk.Segments {
		bySeg[seg.ID] = seg
	}

	out := make([]model.TranslatedSegment, 0, len(chunk.Segments))
	for id, text := range texts {
		seg, ok := bySeg[id]
		if !ok {
			continue // context-only or hallucinated id; not part of this chunk's output.
		}
		confidence, flags := ValidateQuality(seg.Text, text, b.cfg.TargetLanguage)
		if chunk.Oversized {
			flags = append(flags, "oversized_segment")
		}
		out = append(out, model.TranslatedSegment{
			ID:           seg.ID,
			Original:     seg.Text,
			Translated:   text,
			StartS:       seg.StartS,
			EndS:         seg.EndS,
			QualityFlags: flags,
			Confidence:   confidence,
		})
	}
	return out, nil
}

// retryIndividually re-sends each segment in a failed chunk as its own
// one-segment request. Segments that still fail are not included in the
// return value; the caller fills the remaining gap with failedSegment.
func (b *Batcher) retryIndividually(ctx context.Context, segments []model.Segment) []model.TranslatedSegment {
	var out []model.TranslatedSegment
	for _, seg := range segments {
		single := Chunk{Segments: []model.Segment{seg}}
		translated, err := b.translateChunk(ctx, single)
		if err != nil || len(translated) == 0 {
			b.logger.Warn("individual segment retry failed", logging.Int("segment_id", seg.ID), logging.Error(err))
			continue
		}
		out = append(out, translated...)
	}
	return out
}

type promptSegment struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	ContextOnly bool  `json:"context_only,omitempty"`
}

func buildChunkPrompt(chunk Chunk, sourceLang, targetLang string) (string, error) {
	segments := make([]promptSegment, 0, len(chunk.ContextPrefix)+len(chunk.Segments))
	for _, s := range chunk.ContextPrefix {
		segments = append(segments, promptSegment{ID: s.ID, Text: s.Text, ContextOnly: true})
	}
	for _, s := range chunk.Segments {
		segments = append(segments, promptSegment{ID: s.ID, Text: s.Text})
	}

	body, err := json.Marshal(segments)
	if err != nil {
		return "", fmt.Errorf("marshal translation prompt: %w", err)
	}

	return fmt.Sprintf(
		"Translate the following transcript segments from %s to %s. "+
			"Segments marked \"context_only\" are provided for context and must NOT appear in your output. "+
			"Respond with JSON: {\"translations\": [{\"id\": <int>, \"text\": <string>}, ...]} covering every "+
			"non-context segment id exactly once.\n\nSegments:\n%s",
		languageName(sourceLang, "auto-detected"), languageName(targetLang, "English"), string(body),
	), nil
}

// languageName resolves a BCP-47 tag (e.g. "es", "pt-BR") to its English
// display name so the prompt names languages the way a human translator
// brief would, rather than a bare code the model may not recognize.
// An empty tag falls back to def; a tag that does not parse, or has no
// English display name, is returned unchanged.
func languageName(tag, def string) string {
	if tag == "" {
		return def
	}
	normalized := langnorm.ToISO2(tag)
	if normalized == "" {
		normalized = tag
	}
	parsed, err := language.Parse(normalized)
	if err != nil {
		return tag
	}
	name := display.English.Languages().Name(parsed)
	if name == "" {
		return tag
	}
	return name
}

func extractTranslations(parsed map[string]any) (map[int]string, error) {
	raw, ok := parsed["translations"].([]any)
	if !ok {
		return nil, fmt.Errorf("translations field is not an array")
	}
	out := make(map[int]string, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		idFloat, ok := obj["id"].(float64)
		if !ok {
			continue
		}
		text, _ := obj["text"].(string)
		out[int(idFloat)] = text
	}
	return out, nil
}
