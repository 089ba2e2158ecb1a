package llmrouter

import "context"

// Tier names one of the two provider tiers the router chooses between.
type Tier string

const (
	TierLocal  Tier = "local"
	TierRemote Tier = "remote"
)

// TaskKind names an analysis or generation task the router routes
// independently. Each task kind has its own routing table entry.
type TaskKind string

const (
	TaskHighlightDetection TaskKind = "highlight_detection"
	TaskChapterDetection   TaskKind = "chapter_detection"
	TaskTranslation        TaskKind = "translation"
	TaskTitleGeneration    TaskKind = "title_generation"
)

// GenerateOptions carries provider-agnostic generation parameters.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
	StrictSchema    bool // set on the augmented-prompt fallback/retry path
}

// GenerateResult is a provider's raw response plus token accounting.
type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the small capability interface every LLM backend implements.
// Router owns retry, backoff, and fallback; providers only issue one call.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (GenerateResult, error)
}
