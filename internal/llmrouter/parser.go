package llmrouter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"clipline/internal/pipelineerr"
)

// ParseOutcome names which of the four parse strategies in spec §4.5
// eventually produced a result, for metrics/logging.
type ParseOutcome string

const (
	ParseDirect       ParseOutcome = "direct"
	ParseFencedBlock  ParseOutcome = "fenced_block"
	ParseBalancedSpan ParseOutcome = "balanced_span"
	ParseFailure      ParseOutcome = "parse_failure"
)

// Schema is a minimal structural validator: a response object must contain
// every named field to pass. This is deliberately narrower than a full JSON
// Schema validator since no schema library appears anywhere in the example
// corpus this codebase draws its dependency stack from (see DESIGN.md).
type Schema struct {
	Name           string
	RequiredFields []string
}

// Validate reports the first missing required field, or nil.
func (s Schema) Validate(v map[string]any) error {
	for _, field := range s.RequiredFields {
		if _, ok := v[field]; !ok {
			return fmt.Errorf("schema %s: missing required field %q", s.Name, field)
		}
	}
	return nil
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// Parse implements the four-strategy response parse from spec §4.5: direct
// structured parse, first fenced code block, first balanced brace region,
// or parse_failure. On success it also validates against schema.
func Parse(raw string, schema Schema) (map[string]any, ParseOutcome, error) {
	trimmed := strings.TrimSpace(raw)

	if v, err := tryUnmarshal(trimmed); err == nil {
		return finish(v, schema, ParseDirect)
	}

	if match := fencedBlockRE.FindStringSubmatch(raw); len(match) == 2 {
		if v, err := tryUnmarshal(strings.TrimSpace(match[1])); err == nil {
			return finish(v, schema, ParseFencedBlock)
		}
	}

	if span, ok := balancedSpan(raw); ok {
		if v, err := tryUnmarshal(span); err == nil {
			return finish(v, schema, ParseBalancedSpan)
		}
	}

	return nil, ParseFailure, pipelineerr.Wrap(pipelineerr.ErrParseFailure, "", "llmrouter.parse",
		"no strategy produced valid structured output", nil)
}

func finish(v map[string]any, schema Schema, outcome ParseOutcome) (map[string]any, ParseOutcome, error) {
	if err := schema.Validate(v); err != nil {
		return nil, outcome, pipelineerr.Wrap(pipelineerr.ErrParseFailure, "", "llmrouter.parse",
			"schema_failure: "+err.Error(), err)
	}
	return v, outcome, nil
}

func tryUnmarshal(s string) (map[string]any, error) {
	if s == "" {
		return nil, fmt.Errorf("empty input")
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// balancedSpan extracts the first balanced {...} region, tolerating nested
// braces inside strings.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
