package router

import (
	"testing"

	"project-tachyon/internal/catalog"
)

func setupCatalog(t *testing.T) *catalog.Catalog {
	c, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := catalog.Seed(c); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return c
}

func TestResolveDefaultReturnsSortedByPriority(t *testing.T) {
	c := setupCatalog(t)
	// sora_hk (priority 10) is enabled by default; enable the others to see ordering.
	c.SetProviderEnabled("openai", true)
	c.SetProviderEnabled("aihubmix", true)

	r := New(c)
	candidates, err := r.Resolve("sora2", Default, Constraints{RequiredResolutions: []string{"horizontal"}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if candidates[0].ProviderID != "sora_hk" {
		t.Errorf("expected sora_hk first (priority 10), got %s", candidates[0].ProviderID)
	}
}

func TestResolveFiltersByCapability(t *testing.T) {
	c := setupCatalog(t)
	r := New(c)

	// sora2 via sora_hk only supports durations {10,15,25}; 8 should eliminate it.
	candidates, err := r.Resolve("sora2", Default, Constraints{RequiredDurations: []int{8}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates for unsupported duration, got %v", candidates)
	}
}

func TestResolveUnknownModelFails(t *testing.T) {
	c := setupCatalog(t)
	r := New(c)
	if _, err := r.Resolve("does-not-exist", Default, Constraints{}); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestResolveWeightedReturnsSingleCandidate(t *testing.T) {
	c := setupCatalog(t)
	c.SetProviderEnabled("openai", true)
	r := New(c)

	candidates, err := r.Resolve("sora2", Weighted, Constraints{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected weighted routing to return exactly one candidate, got %d", len(candidates))
	}
}

func TestNormalizeDegradesUnsupportedStrategies(t *testing.T) {
	for _, s := range []string{"manual", "cost", "latency", "quota", "bogus"} {
		if got := Normalize(s); got != Default {
			t.Errorf("Normalize(%q) = %s, want default", s, got)
		}
	}
	if Normalize("failover") != Failover {
		t.Error("expected failover to pass through")
	}
}
