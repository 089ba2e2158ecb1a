package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipline/internal/llmrouter"
)

// OpenRouterProvider talks to an OpenRouter/OpenAI-compatible chat
// completion endpoint, grounded on hlcut's openrouter adapter: bearer auth,
// JSON-schema-constrained requests on the strict-retry path, and secret
// redaction on error responses.
type OpenRouterProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenRouterProvider constructs a remote-tier Provider.
func NewOpenRouterProvider(apiKey, baseURL, model string, timeout time.Duration) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenRouterProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Stream         bool            `json:"stream"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate issues one chat completion request. When opts.StrictSchema is
// set the request asks the provider to constrain output to a bare JSON
// object, matching the router's augmented-prompt retry contract.
func (p *OpenRouterProvider) Generate(ctx context.Context, prompt string, opts llmrouter.GenerateOptions) (llmrouter.GenerateResult, error) {
	reqBody := chatCompletionRequest{
		Model:       p.model,
		Stream:      false,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxOutputTokens,
	}
	if opts.StrictSchema {
		reqBody.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: map[string]any{
				"name":   "clipline_response",
				"strict": false,
				"schema": map[string]any{
					"type": "object",
				},
			},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return llmrouter.GenerateResult{}, fmt.Errorf("marshal openrouter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llmrouter.GenerateResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return llmrouter.GenerateResult{}, classifyLLMTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return llmrouter.GenerateResult{}, classifyLLMStatusError(resp.StatusCode, string(raw), p.apiKey)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llmrouter.GenerateResult{}, fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(out.Choices) == 0 {
		return llmrouter.GenerateResult{}, fmt.Errorf("openrouter: no choices returned")
	}

	return llmrouter.GenerateResult{
		Text:             out.Choices[0].Message.Content,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}
