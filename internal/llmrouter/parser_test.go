package llmrouter_test

import (
	"errors"
	"testing"

	"clipline/internal/llmrouter"
	"clipline/internal/pipelineerr"
)

var titleSchema = llmrouter.Schema{Name: "title", RequiredFields: []string{"title"}}

func TestParseDirect(t *testing.T) {
	v, outcome, err := llmrouter.Parse(`{"title": "Best Moment"}`, titleSchema)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if outcome != llmrouter.ParseDirect {
		t.Fatalf("expected direct outcome, got %s", outcome)
	}
	if v["title"] != "Best Moment" {
		t.Fatalf("unexpected value: %v", v)
	}
}

func TestParseFencedBlock(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"title\": \"Fenced\"}\n```\nLet me know if you need more."
	v, outcome, err := llmrouter.Parse(raw, titleSchema)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if outcome != llmrouter.ParseFencedBlock {
		t.Fatalf("expected fenced_block outcome, got %s", outcome)
	}
	if v["title"] != "Fenced" {
		t.Fatalf("unexpected value: %v", v)
	}
}

func TestParseBalancedSpan(t *testing.T) {
	raw := `Sure! The result is {"title": "Balanced", "nested": {"a": 1}} and that's final.`
	v, outcome, err := llmrouter.Parse(raw, titleSchema)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if outcome != llmrouter.ParseBalancedSpan {
		t.Fatalf("expected balanced_span outcome, got %s", outcome)
	}
	if v["title"] != "Balanced" {
		t.Fatalf("unexpected value: %v", v)
	}
}

func TestParseFailureWhenNoStrategyMatches(t *testing.T) {
	_, outcome, err := llmrouter.Parse("no structured data here at all", titleSchema)
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if outcome != llmrouter.ParseFailure {
		t.Fatalf("expected parse_failure outcome, got %s", outcome)
	}
	if !errors.Is(err, pipelineerr.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure marker: %v", err)
	}
}

func TestParseSchemaViolation(t *testing.T) {
	_, _, err := llmrouter.Parse(`{"wrong_field": "x"}`, titleSchema)
	if err == nil {
		t.Fatal("expected schema validation failure")
	}
	if !errors.Is(err, pipelineerr.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure marker: %v", err)
	}
}
