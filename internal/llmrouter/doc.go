// Package llmrouter selects a provider per analysis task, retries and falls
// back between local and remote tiers, and parses provider responses.
//
// Providers are modeled as the single-method capability interface spec §9
// calls for (Generate(prompt, options) -> raw text + token counts); Router
// owns all routing, retry-budget, backoff, and fallback policy so provider
// implementations in internal/adapters stay thin HTTP clients.
package llmrouter
