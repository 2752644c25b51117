package config

import (
	"os"
	"testing"

	"project-tachyon/internal/catalog"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIntSettingFallsBackToDefault(t *testing.T) {
	m := New(openTestCatalog(t))
	if got := m.MaxConcurrentTasks(); got != 20 {
		t.Errorf("expected default 20, got %d", got)
	}
}

func TestIntSettingPrefersEnvOverDefault(t *testing.T) {
	os.Setenv("MAX_CONCURRENT_TASKS", "7")
	defer os.Unsetenv("MAX_CONCURRENT_TASKS")

	m := New(openTestCatalog(t))
	if got := m.MaxConcurrentTasks(); got != 7 {
		t.Errorf("expected env override 7, got %d", got)
	}
}

func TestIntSettingPrefersStoredOverrideOverEnv(t *testing.T) {
	os.Setenv("MAX_CONCURRENT_TASKS", "7")
	defer os.Unsetenv("MAX_CONCURRENT_TASKS")

	c := openTestCatalog(t)
	if err := c.SetSetting(KeyMaxConcurrentTasks, "3"); err != nil {
		t.Fatalf("set override: %v", err)
	}

	m := New(c)
	if got := m.MaxConcurrentTasks(); got != 3 {
		t.Errorf("expected stored override 3, got %d", got)
	}
}

func TestFailoverTokensSplitsAndTrims(t *testing.T) {
	os.Setenv("FAILOVER_RETRYABLE_TOKENS", " flaky , glitch ,,retry_me")
	defer os.Unsetenv("FAILOVER_RETRYABLE_TOKENS")

	m := New(openTestCatalog(t))
	got := m.FailoverRetryableTokens()
	want := []string{"flaky", "glitch", "retry_me"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestCredentialsPrefersHTTPSProxy(t *testing.T) {
	os.Setenv("HTTPS_PROXY", "https://proxy.example.com")
	os.Setenv("HTTP_PROXY", "http://other.example.com")
	defer os.Unsetenv("HTTPS_PROXY")
	defer os.Unsetenv("HTTP_PROXY")

	creds := Credentials("SORA_HK")
	if creds.HTTPProxy != "https://proxy.example.com" {
		t.Errorf("expected HTTPS_PROXY to win, got %s", creds.HTTPProxy)
	}
}
