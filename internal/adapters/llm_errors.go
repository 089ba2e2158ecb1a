package adapters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"clipline/internal/pipelineerr"
)

// classifyLLMTransportError maps a client-level HTTP error (connection
// refused, timeout, DNS failure) to a pipelineerr marker so the router's
// classify-and-retry logic can act on it.
func classifyLLMTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pipelineerr.Wrap(pipelineerr.ErrCancelled, "", "llm.request", "request timed out or was cancelled", err)
	}
	return pipelineerr.Wrap(pipelineerr.ErrProviderUnavailable, "", "llm.request", "provider unreachable: "+err.Error(), errLLMUnreachable)
}

// classifyLLMStatusError maps an HTTP status code plus response body to a
// pipelineerr marker. apiKey, when non-empty, is redacted from the body
// before it is embedded in the error message.
func classifyLLMStatusError(status int, body, apiKey string) error {
	redacted := redactSecrets(body, apiKey)
	msg := fmt.Sprintf("provider returned status %d: %s", status, truncateText(redacted, 300))
	switch {
	case status == 429:
		return pipelineerr.Wrap(pipelineerr.ErrRateLimited, "", "llm.request", msg, nil)
	case status >= 500:
		return pipelineerr.Wrap(pipelineerr.ErrProviderUnavailable, "", "llm.request", msg, nil)
	case status == 401 || status == 403:
		return pipelineerr.Wrap(pipelineerr.ErrInvalidInput, "", "llm.request", msg, nil)
	default:
		return pipelineerr.Wrap(pipelineerr.ErrProviderUnavailable, "", "llm.request", msg, nil)
	}
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

// redactSecrets scrubs an API key and common auth-header shapes out of a
// response body before it is logged or embedded in an error message.
func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
