package llmrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"clipline/internal/config"
	"clipline/internal/logging"
	"clipline/internal/pipelineerr"
)

// providerRetryBudget is the default number of remote retries on
// rate-limited responses, per spec §4.4.
const providerRetryBudget = 3

const (
	backoffBase   = 1 * time.Second
	backoffFactor = 2
	backoffCap    = 60 * time.Second
)

// Metrics accumulates counters tests and status commands can inspect.
type Metrics struct {
	mu           sync.Mutex
	FallbackUsed int
	BothFailed   int
}

func (m *Metrics) recordFallback() {
	m.mu.Lock()
	m.FallbackUsed++
	m.mu.Unlock()
}

func (m *Metrics) recordBothFailed() {
	m.mu.Lock()
	m.BothFailed++
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{FallbackUsed: m.FallbackUsed, BothFailed: m.BothFailed}
}

// Router selects a provider per task kind, retries with backoff, falls back
// from local to remote, and parses responses. It is the "small provider
// capability interface" consumer spec §9 calls for: Router owns all policy,
// Provider implementations are one-method HTTP clients.
type Router struct {
	cfg       config.LLM
	providers map[Tier]Provider
	limiter   *tokenBucket
	logger    *slog.Logger
	metrics   Metrics
}

// New constructs a Router. providers must contain at least the tiers named
// in cfg.Routing; a missing tier surfaces as provider_unavailable at call
// time rather than at construction, so a router can be built before all
// adapters are wired.
func New(cfg config.LLM, providers map[Tier]Provider, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{
		cfg:       cfg,
		providers: providers,
		limiter:   newTokenBucket(cfg.RPM),
		logger:    logging.NewComponentLogger(logger, "llmrouter"),
	}
}

// Metrics exposes the router's call counters.
func (r *Router) Metrics() Metrics {
	return r.metrics.Snapshot()
}

// Execute routes a single task through the configured provider, retrying,
// falling back, and parsing per spec §4.4/§4.5.
func (r *Router) Execute(ctx context.Context, task TaskKind, prompt string, schema Schema) (map[string]any, error) {
	primaryTier := r.routingTier(task)
	result, parseErr := r.callAndParse(ctx, primaryTier, prompt, schema, GenerateOptions{
		Temperature:     r.cfg.Temperature,
		MaxOutputTokens: r.cfg.MaxOutputTokens,
	})
	if parseErr == nil {
		return result, nil
	}

	if primaryTier != TierLocal || !r.cfg.FallbackEnabled {
		return nil, parseErr
	}

	r.logger.Warn("primary provider failed, falling back to remote",
		logging.String("task_kind", string(task)), logging.Error(parseErr))
	augmented := augmentPromptForStrictSchema(prompt)
	result, fallbackErr := r.callAndParse(ctx, TierRemote, augmented, schema, GenerateOptions{
		Temperature:     r.cfg.Temperature,
		MaxOutputTokens: r.cfg.MaxOutputTokens,
		StrictSchema:    true,
	})
	if fallbackErr != nil {
		r.metrics.recordBothFailed()
		return nil, fallbackErr
	}
	r.metrics.recordFallback()
	return result, nil
}

// callAndParse issues one provider call (with the remote tier's rate limit
// and retry-on-rate-limit policy applied) and parses the response, retrying
// the parse once in strict mode on parse/schema failure.
func (r *Router) callAndParse(ctx context.Context, tier Tier, prompt string, schema Schema, opts GenerateOptions) (map[string]any, error) {
	raw, err := r.call(ctx, tier, prompt, opts)
	if err != nil {
		return nil, err
	}

	parsed, _, parseErr := Parse(raw, schema)
	if parseErr == nil {
		return parsed, nil
	}

	// One strict-mode retry on parse or schema failure per spec §4.5.
	strictOpts := opts
	strictOpts.StrictSchema = true
	raw, err = r.call(ctx, tier, augmentPromptForStrictSchema(prompt), strictOpts)
	if err != nil {
		return nil, err
	}
	parsed, _, parseErr = Parse(raw, schema)
	if parseErr != nil {
		return nil, parseErr
	}
	return parsed, nil
}

// call performs the provider round trip, honoring the remote rate limiter
// and retrying rate-limited responses with exponential backoff up to
// providerRetryBudget.
func (r *Router) call(ctx context.Context, tier Tier, prompt string, opts GenerateOptions) (string, error) {
	provider, ok := r.providers[tier]
	if !ok || provider == nil {
		return "", pipelineerr.Wrap(pipelineerr.ErrProviderUnavailable, "", "llmrouter.call",
			fmt.Sprintf("no provider configured for tier %q", tier), nil)
	}

	timeout := r.timeoutFor(tier)
	attempt := 0
	for {
		if tier == TierRemote {
			if !r.limiter.Wait(timeout) {
				return "", pipelineerr.Wrap(pipelineerr.ErrRateLimited, "", "llmrouter.call",
					"rate limiter starved before request could be sent", nil)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := provider.Generate(callCtx, prompt, opts)
		cancel()
		if err == nil {
			return result.Text, nil
		}

		if !errors.Is(pipelineerr.Classify(err), pipelineerr.ErrRateLimited) || attempt >= providerRetryBudget {
			return "", err
		}

		delay := backoffDelay(attempt)
		r.logger.Warn("rate limited, backing off",
			logging.String("tier", string(tier)), logging.Int("attempt", attempt), logging.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return "", pipelineerr.Wrap(pipelineerr.ErrCancelled, "", "llmrouter.call", "cancelled during backoff", ctx.Err())
		case <-time.After(delay):
		}
		attempt++
	}
}

func (r *Router) timeoutFor(tier Tier) time.Duration {
	seconds := r.cfg.Local.TimeoutSeconds
	if tier == TierRemote {
		seconds = r.cfg.Remote.TimeoutSeconds
	}
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

func (r *Router) routingTier(task TaskKind) Tier {
	var value string
	switch task {
	case TaskHighlightDetection:
		value = r.cfg.Routing.HighlightDetection
	case TaskChapterDetection:
		value = r.cfg.Routing.ChapterDetection
	case TaskTranslation:
		value = r.cfg.Routing.Translation
	case TaskTitleGeneration:
		value = r.cfg.Routing.TitleGeneration
	}
	if Tier(value) == TierRemote {
		return TierRemote
	}
	return TierLocal
}

// backoffDelay computes attempt N's exponential backoff with full jitter,
// per spec §4.1/§4.4: base 1s, factor 2, cap 60s.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
		if d > backoffCap {
			d = backoffCap
			break
		}
	}
	jittered := time.Duration(rand.Int63n(int64(d) + 1))
	return jittered
}

func augmentPromptForStrictSchema(prompt string) string {
	return prompt + "\n\nRespond with a single JSON object matching the required schema exactly. Do not include commentary or markdown formatting."
}
