package translate_test

import (
	"strings"
	"testing"

	"clipline/internal/model"
	"clipline/internal/translate"
)

func seg(id int, text string) model.Segment {
	return model.Segment{ID: id, StartS: float64(id * 10), EndS: float64(id*10 + 9), Text: text}
}

func TestChunkSegmentsRespectsTokenBudget(t *testing.T) {
	segments := make([]model.Segment, 0, 50)
	for i := 0; i < 50; i++ {
		segments = append(segments, seg(i, "the quick brown fox jumps over the lazy dog"))
	}
	chunks := translate.ChunkSegments(segments, 100, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	seen := map[int]bool{}
	for _, c := range chunks {
		for _, s := range c.Segments {
			if seen[s.ID] {
				t.Fatalf("segment %d appeared in more than one chunk's Segments", s.ID)
			}
			seen[s.ID] = true
		}
	}
	if len(seen) != 50 {
		t.Fatalf("expected all 50 segments covered, got %d", len(seen))
	}
}

func TestChunkSegmentsPreservesOrder(t *testing.T) {
	segments := []model.Segment{seg(1, "a"), seg(2, "b"), seg(3, "c")}
	chunks := translate.ChunkSegments(segments, 4000, 0)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0].Segments
	for i, s := range got {
		if s.ID != segments[i].ID {
			t.Fatalf("order not preserved: got %d at index %d, want %d", s.ID, i, segments[i].ID)
		}
	}
}

func TestOversizedSegmentBecomesItsOwnChunk(t *testing.T) {
	huge := seg(1, strings.Repeat("word ", 5000))
	segments := []model.Segment{seg(0, "short"), huge, seg(2, "short again")}
	chunks := translate.ChunkSegments(segments, 100, 0)

	found := false
	for _, c := range chunks {
		if len(c.Segments) == 1 && c.Segments[0].ID == 1 {
			found = true
			if !c.Oversized {
				t.Fatal("expected oversized flag on the huge segment's chunk")
			}
		}
	}
	if !found {
		t.Fatal("expected the oversized segment to appear in its own chunk")
	}
}

func TestChunkSegmentsCarriesOverlapContext(t *testing.T) {
	segments := make([]model.Segment, 0, 10)
	for i := 0; i < 10; i++ {
		segments = append(segments, seg(i, "the quick brown fox jumps over the lazy dog repeatedly"))
	}
	chunks := translate.ChunkSegments(segments, 60, 2)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if len(chunks[i].ContextPrefix) == 0 {
			t.Fatalf("chunk %d missing overlap context prefix", i)
		}
		prevTail := chunks[i-1].Segments[len(chunks[i-1].Segments)-1]
		gotTail := chunks[i].ContextPrefix[len(chunks[i].ContextPrefix)-1]
		if prevTail.ID != gotTail.ID {
			t.Fatalf("overlap prefix should end with previous chunk's tail: got %d want %d", gotTail.ID, prevTail.ID)
		}
	}
}

func TestEstimateTokensIdeographicVsLatin(t *testing.T) {
	latin := translate.EstimateTokens("hello world this is a test")
	words := 6 // hello, world, this, is, a, test
	if latin != float64(words)*1.3 {
		t.Fatalf("expected latin heuristic 1.3*words, got %f", latin)
	}
	ideographic := translate.EstimateTokens("こんにちは世界")
	if ideographic <= 0 {
		t.Fatal("expected positive token estimate for ideographic text")
	}
}
