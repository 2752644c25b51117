// Package classifier maps a free-form provider error message to an error
// kind and a retry policy decision, by ordered case-insensitive substring
// matching against a fixed token table plus two configurable extension
// lists.
package classifier

import "strings"

// Kind enumerates the error taxonomy a Task's terminal error_code is drawn
// from (spec §4.7).
type Kind string

const (
	ContentPolicy    Kind = "content_policy"
	ValidationError  Kind = "validation_error"
	RateLimited      Kind = "rate_limited"
	Timeout          Kind = "timeout"
	QuotaExceeded    Kind = "quota_exceeded"
	Unauthorized     Kind = "unauthorized"
	Forbidden        Kind = "forbidden"
	DependencyError  Kind = "dependency_error"
	ServerError      Kind = "server_error"
	UnknownError     Kind = "unknown_error"
	DownloadFailed   Kind = "download_failed"
	NoProvider       Kind = "no_provider"
)

// Classification is the outcome of classifying one message: the error kind
// and whether a worker may retry or fail over because of it.
type Classification struct {
	Kind      Kind
	Retryable bool
}

type category struct {
	kind      Kind
	tokens    []string
	retryable bool
}

// defaultCategories is checked in order; the first matching token wins.
// The order matters: "content policy violation... 429" would never occur
// in practice, but the table's priority follows the source policy exactly.
var defaultCategories = []category{
	{ContentPolicy, []string{"content", "policy", "violation", "safety", "nudity"}, false},
	{ValidationError, []string{"validation", "schema", "parameter", "bad request"}, false},
	{RateLimited, []string{"rate limit", "too many requests", "429"}, true},
	{Timeout, []string{"timeout", "timed out"}, true},
	{QuotaExceeded, []string{"quota", "insufficient", "balance"}, true},
	{Unauthorized, []string{"unauthorized", "invalid api key", "401"}, true},
	{Forbidden, []string{"forbidden", "403"}, true},
	{DependencyError, []string{"dependency", "overloaded"}, true},
	{ServerError, []string{"server error", "service unavailable", "502", "503", "504"}, true},
}

// Config supplies the two configurable extension token lists described in
// spec §6 (FAILOVER_RETRYABLE_TOKENS / FAILOVER_NON_RETRYABLE_TOKENS).
type Config struct {
	ExtraNonRetryableTokens []string
	ExtraRetryableTokens    []string
}

// Classifier is a pure function of (message, Config); it holds no mutable
// state so it is trivially safe to share across worker goroutines.
type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	return &Classifier{cfg: normalizeConfig(cfg)}
}

func normalizeConfig(cfg Config) Config {
	return Config{
		ExtraNonRetryableTokens: lowerAll(cfg.ExtraNonRetryableTokens),
		ExtraRetryableTokens:    lowerAll(cfg.ExtraRetryableTokens),
	}
}

func lowerAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return out
}

// Classify is deterministic: the same (message, config) always yields the
// same Classification.
func (c *Classifier) Classify(message string) Classification {
	if message == "" {
		return Classification{UnknownError, false}
	}
	normalized := strings.ToLower(message)

	for _, cat := range defaultCategories {
		if containsAny(normalized, cat.tokens) {
			return Classification{cat.kind, cat.retryable}
		}
	}

	if containsAny(normalized, c.cfg.ExtraNonRetryableTokens) {
		return Classification{ValidationError, false}
	}
	if containsAny(normalized, c.cfg.ExtraRetryableTokens) {
		return Classification{DependencyError, true}
	}

	return Classification{UnknownError, false}
}

func containsAny(haystack string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}
