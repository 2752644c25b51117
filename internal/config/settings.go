// Package config resolves the orchestrator's tunables with this
// precedence: a stored override in the catalog, then an environment
// variable, then a hardcoded default. The classifier token lists
// (FAILOVER_*_TOKENS) are read from the environment only.
package config

import (
	"os"
	"strconv"
	"strings"

	"project-tachyon/internal/catalog"
)

// Settings keys stored as AppSetting rows when an operator overrides a
// default at runtime through SetOverride.
const (
	KeyMaxConcurrentTasks       = "max_concurrent_tasks"
	KeyConcurrencyMinTasks      = "concurrency_min_tasks"
	KeyConcurrencyErrorThresh   = "concurrency_error_threshold"
	KeyConcurrencyCooldownSec   = "concurrency_cooldown_seconds"
	KeyConcurrencyRecoveryRate  = "concurrency_recovery_rate_seconds"
	KeyPollInitialWaitSeconds   = "poll_initial_wait_seconds"
	KeyPollIntervalSeconds      = "poll_interval_seconds"
	KeyMaxPollTimeSeconds       = "max_poll_time"
	KeyAPIRequestTimeoutSeconds = "api_request_timeout_seconds"
	KeyDownloadTimeoutSeconds   = "download_timeout_seconds"
	KeyProviderRatePerSecond    = "provider_rate_per_second"
	KeyProviderRateBurst        = "provider_rate_burst"
)

// Manager resolves settings through catalog overrides and environment
// variables. It holds no cache: every read is a fresh lookup, since
// overrides can change between runs and staleness here would be worse
// than the extra query.
type Manager struct {
	catalog *catalog.Catalog
}

// New builds a Manager backed by c.
func New(c *catalog.Catalog) *Manager {
	return &Manager{catalog: c}
}

// IntSetting resolves key with the documented precedence: stored
// override, then env var envKey, then def.
func (m *Manager) IntSetting(key, envKey string, def int) int {
	if stored, ok, err := m.catalog.GetSetting(key); err == nil && ok {
		if v, err := strconv.Atoi(stored); err == nil {
			return v
		}
	}
	if raw := os.Getenv(envKey); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

// StringSetting resolves key the same way IntSetting does.
func (m *Manager) StringSetting(key, envKey, def string) string {
	if stored, ok, err := m.catalog.GetSetting(key); err == nil && ok && stored != "" {
		return stored
	}
	if raw := os.Getenv(envKey); raw != "" {
		return raw
	}
	return def
}

// SetOverride stores an explicit override in the catalog, taking
// precedence over any environment variable from then on.
func (m *Manager) SetOverride(key, value string) error {
	return m.catalog.SetSetting(key, value)
}

// MaxConcurrentTasks is the Adaptive Concurrency Governor's ceiling when
// not in Safe Mode.
func (m *Manager) MaxConcurrentTasks() int {
	return m.IntSetting(KeyMaxConcurrentTasks, "MAX_CONCURRENT_TASKS", 20)
}

// ConcurrencyMinTasks is the governor's Safe Mode floor.
func (m *Manager) ConcurrencyMinTasks() int {
	return m.IntSetting(KeyConcurrencyMinTasks, "CONCURRENCY_MIN_TASKS", 5)
}

// ConcurrencyErrorThreshold is the consecutive-error count that trips
// Safe Mode.
func (m *Manager) ConcurrencyErrorThreshold() int {
	return m.IntSetting(KeyConcurrencyErrorThresh, "CONCURRENCY_ERROR_THRESHOLD", 2)
}

// ConcurrencyCooldownSeconds holds the ceiling at its floor once Safe
// Mode trips, before linear recovery begins.
func (m *Manager) ConcurrencyCooldownSeconds() int {
	return m.IntSetting(KeyConcurrencyCooldownSec, "CONCURRENCY_COOLDOWN_SECONDS", 600)
}

// ConcurrencyRecoveryRateSeconds is how often the ceiling climbs by one
// once the cooldown window elapses.
func (m *Manager) ConcurrencyRecoveryRateSeconds() int {
	return m.IntSetting(KeyConcurrencyRecoveryRate, "CONCURRENCY_RECOVERY_RATE_SECONDS", 60)
}

// PollInitialWaitSeconds is how long a worker waits after submission
// before polling a provider for the first time.
func (m *Manager) PollInitialWaitSeconds() int {
	return m.IntSetting(KeyPollInitialWaitSeconds, "POLL_INITIAL_WAIT_SECONDS", 20)
}

// PollIntervalSeconds is the steady-state polling cadence.
func (m *Manager) PollIntervalSeconds() int {
	return m.IntSetting(KeyPollIntervalSeconds, "POLL_INTERVAL_SECONDS", 10)
}

// MaxPollTimeSeconds bounds how long a worker polls before giving up on
// a submitted task as timed out.
func (m *Manager) MaxPollTimeSeconds() int {
	return m.IntSetting(KeyMaxPollTimeSeconds, "MAX_POLL_TIME", 2100)
}

// APIRequestTimeoutSeconds bounds a single provider HTTP request.
func (m *Manager) APIRequestTimeoutSeconds() int {
	return m.IntSetting(KeyAPIRequestTimeoutSeconds, "API_REQUEST_TIMEOUT_SECONDS", 30)
}

// DownloadTimeoutSeconds bounds a single video download.
func (m *Manager) DownloadTimeoutSeconds() int {
	return m.IntSetting(KeyDownloadTimeoutSeconds, "DOWNLOAD_TIMEOUT_SECONDS", 300)
}

// ProviderRatePerSecond bounds outbound requests per second to a single
// provider, independent of the process-wide concurrency governor.
func (m *Manager) ProviderRatePerSecond() int {
	return m.IntSetting(KeyProviderRatePerSecond, "PROVIDER_RATE_PER_SECOND", 5)
}

// ProviderRateBurst is the token-bucket burst size paired with
// ProviderRatePerSecond.
func (m *Manager) ProviderRateBurst() int {
	return m.IntSetting(KeyProviderRateBurst, "PROVIDER_RATE_BURST", 10)
}

// FailoverRetryableTokens is the operator-configurable addition to the
// classifier's retryable-token table (spec §6).
func (m *Manager) FailoverRetryableTokens() []string {
	return splitTokens(os.Getenv("FAILOVER_RETRYABLE_TOKENS"))
}

// FailoverNonRetryableTokens is the non-retryable counterpart.
func (m *Manager) FailoverNonRetryableTokens() []string {
	return splitTokens(os.Getenv("FAILOVER_NON_RETRYABLE_TOKENS"))
}

// ProviderCredentials are the API key / base URL / proxy settings a
// provider client needs, resolved straight from the environment — these
// are secrets and never pass through the catalog override path.
type ProviderCredentials struct {
	APIKey    string
	BaseURL   string
	HTTPProxy string
}

// Credentials resolves SORA_HK_*, OPENAI_*, or AIHUBMIX_* style env vars
// for the given provider prefix (e.g. "SORA_HK").
func Credentials(envPrefix string) ProviderCredentials {
	return ProviderCredentials{
		APIKey:    os.Getenv(envPrefix + "_API_KEY"),
		BaseURL:   os.Getenv(envPrefix + "_BASE_URL"),
		HTTPProxy: firstNonEmpty(os.Getenv("HTTPS_PROXY"), os.Getenv("HTTP_PROXY")),
	}
}

func splitTokens(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
