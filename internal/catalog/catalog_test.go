package catalog

import "testing"

func setupTestCatalog(t *testing.T) *Catalog {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSeedIsIdempotent(t *testing.T) {
	c := setupTestCatalog(t)

	if err := Seed(c); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	providers, err := c.ListProviders()
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	if len(providers) != 3 {
		t.Fatalf("expected 3 seeded providers, got %d", len(providers))
	}

	if err := Seed(c); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	providers, _ = c.ListProviders()
	if len(providers) != 3 {
		t.Fatalf("expected seed to be idempotent, got %d providers", len(providers))
	}
}

func TestGetModelPreservesProviderOrder(t *testing.T) {
	c := setupTestCatalog(t)
	if err := Seed(c); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	m, ok, err := c.GetModel("sora2")
	if err != nil || !ok {
		t.Fatalf("expected sora2 model, ok=%v err=%v", ok, err)
	}
	want := []string{"sora_hk", "openai", "aihubmix"}
	if len(m.ProviderOrder) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(m.ProviderOrder))
	}
	for i, id := range want {
		if m.ProviderOrder[i] != id {
			t.Errorf("provider order[%d] = %s, want %s", i, m.ProviderOrder[i], id)
		}
	}
	if len(m.ProviderModelIDs["openai"]) != 3 {
		t.Errorf("expected 3 openai model ids, got %d", len(m.ProviderModelIDs["openai"]))
	}
}

func TestSetProviderPriorityAffectsListOrder(t *testing.T) {
	c := setupTestCatalog(t)
	if err := Seed(c); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := c.SetProviderPriority("aihubmix", 1); err != nil {
		t.Fatalf("set priority failed: %v", err)
	}

	providers, err := c.ListProviders()
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	if providers[0].ID != "aihubmix" {
		t.Errorf("expected aihubmix first after priority change, got %s", providers[0].ID)
	}
}

func TestRecordTaskOutcomeUpserts(t *testing.T) {
	c := setupTestCatalog(t)

	if err := c.RecordTaskOutcome("completed"); err != nil {
		t.Fatalf("record outcome failed: %v", err)
	}
	if err := c.RecordTaskOutcome("completed"); err != nil {
		t.Fatalf("record outcome failed: %v", err)
	}
	if err := c.RecordTaskOutcome("failed"); err != nil {
		t.Fatalf("record outcome failed: %v", err)
	}

	stats, err := c.DailyStats(7)
	if err != nil {
		t.Fatalf("daily stats failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 day of stats, got %d", len(stats))
	}
	if stats[0].Completed != 2 || stats[0].Failed != 1 {
		t.Errorf("unexpected counts: completed=%d failed=%d", stats[0].Completed, stats[0].Failed)
	}
}
