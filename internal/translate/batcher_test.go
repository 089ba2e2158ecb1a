package translate_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"clipline/internal/config"
	"clipline/internal/llmrouter"
	"clipline/internal/model"
	"clipline/internal/translate"
)

type fakeExecutor struct {
	calls   int
	failIDs map[int]bool
}

// Execute parses the prompt's embedded segment ids and answers
// "translated-<id>" for each, except ids in failIDs which return an error to
// exercise the individual-retry path.
func (f *fakeExecutor) Execute(ctx context.Context, task llmrouter.TaskKind, prompt string, schema llmrouter.Schema) (map[string]any, error) {
	f.calls++
	ids := extractPromptIDs(prompt)
	if len(ids) == 1 && f.failIDs[ids[0]] {
		return nil, fmt.Errorf("simulated failure for segment %d", ids[0])
	}
	for _, id := range ids {
		if f.failIDs[id] && len(ids) > 1 {
			return nil, fmt.Errorf("simulated chunk failure containing segment %d", id)
		}
	}
	translations := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		translations = append(translations, map[string]any{"id": id, "text": fmt.Sprintf("translated-%d", id)})
	}
	// Round-trip through JSON so the result has the shape the router's
	// parser returns: []any elements and float64 ids.
	body, err := json.Marshal(map[string]any{"translations": translations})
	if err != nil {
		return nil, err
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func extractPromptIDs(prompt string) []int {
	// The prompt ends with a JSON array of {"id":N,"text":...} objects on
	// its last line (the instruction text above it also contains brackets);
	// pull out the non-context-only ids in order of appearance.
	var raw []struct {
		ID          int  `json:"id"`
		ContextOnly bool `json:"context_only"`
	}
	start := lastIndexOf(prompt, '\n') + 1
	end := lastIndexOf(prompt, ']')
	if start < 0 || end < 0 || end <= start {
		return nil
	}
	_ = json.Unmarshal([]byte(prompt[start:end+1]), &raw)
	var ids []int
	for _, r := range raw {
		if !r.ContextOnly {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func indexOf(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func lastIndexOf(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func TestTranslateAllSucceed(t *testing.T) {
	segments := []model.Segment{seg(1, "hello"), seg(2, "world")}
	b := translate.New(config.Translation{MaxTokensPerRequest: 4000, MinSuccessRate: 0.9, TargetLanguage: "en"}, &fakeExecutor{}, nil)

	result, err := b.Translate(context.Background(), segments)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(result.Successful) != 2 || len(result.Failed) != 0 {
		t.Fatalf("expected 2 successful 0 failed, got %d/%d", len(result.Successful), len(result.Failed))
	}
	if result.SuccessRate != 1.0 {
		t.Fatalf("expected success rate 1.0, got %f", result.SuccessRate)
	}
}

func TestTranslatePartialFailureFallsBackToOriginal(t *testing.T) {
	segments := []model.Segment{seg(1, "hello"), seg(2, "world"), seg(3, "again")}
	exec := &fakeExecutor{failIDs: map[int]bool{2: true}}
	b := translate.New(config.Translation{MaxTokensPerRequest: 4000, MinSuccessRate: 0.5, TargetLanguage: "en"}, exec, nil)

	result, err := b.Translate(context.Background(), segments)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(result.Successful) != 2 {
		t.Fatalf("expected 2 successful, got %d", len(result.Successful))
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != 2 {
		t.Fatalf("expected segment 2 to fail, got %+v", result.Failed)
	}
	if result.Failed[0].Translated != result.Failed[0].Original {
		t.Fatal("failed segment should fall back to original text")
	}
	if !result.Failed[0].HasFlag("translation_failed") {
		t.Fatal("failed segment should carry translation_failed flag")
	}
}

func TestTranslateOutputIsSubsetOfInputIDsNoDuplicates(t *testing.T) {
	segments := make([]model.Segment, 0, 20)
	for i := 0; i < 20; i++ {
		segments = append(segments, seg(i, "the quick brown fox jumps over the lazy dog"))
	}
	b := translate.New(config.Translation{MaxTokensPerRequest: 40, OverlapSegments: 2, MinSuccessRate: 0.5, TargetLanguage: "en"}, &fakeExecutor{}, nil)

	result, err := b.Translate(context.Background(), segments)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	seen := map[int]bool{}
	inputIDs := map[int]bool{}
	for _, s := range segments {
		inputIDs[s.ID] = true
	}
	for _, ts := range append(append([]model.TranslatedSegment{}, result.Successful...), result.Failed...) {
		if seen[ts.ID] {
			t.Fatalf("duplicate id %d in output", ts.ID)
		}
		seen[ts.ID] = true
		if !inputIDs[ts.ID] {
			t.Fatalf("output id %d not present in input", ts.ID)
		}
	}
	if len(seen) != len(segments) {
		t.Fatalf("expected every input segment represented, got %d of %d", len(seen), len(segments))
	}
}
