package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"project-tachyon/internal/catalog"
	"project-tachyon/internal/classifier"
	"project-tachyon/internal/command"
	"project-tachyon/internal/provider"
	"project-tachyon/internal/router"
	"project-tachyon/internal/runmanager"
	"project-tachyon/internal/stats"
	"project-tachyon/internal/store"
	"project-tachyon/internal/worker"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	c, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := catalog.Seed(c); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := store.New()
	r := router.New(c)
	f := provider.NewFactory()
	cl := classifier.New(classifier.Config{})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := worker.New(worker.DefaultConfig(), nil, log)
	rm := runmanager.New(s, r, f, cl, w, log)
	cmds := command.New(s, c, rm, t.TempDir(), log)
	statsManager := stats.New(c, t.TempDir())

	return New(cmds, statsManager, nil)
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSubmitRunRejectsMissingModel(t *testing.T) {
	srv := testServer(t)
	body, _ := json.Marshal(map[string]any{
		"storyboard_id": "nope",
		"model_id":      "sora2",
		"gen_count":     1,
		"concurrency":   1,
		"segment_range": "all",
		"output_layout": "centralized",
	})
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListProvidersReturnsSeededProviders(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var providers []catalog.Provider
	if err := json.Unmarshal(rec.Body.Bytes(), &providers); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(providers) == 0 {
		t.Fatal("expected seeded providers, got none")
	}
}

func TestDisableProviderThenEnableRoundTrips(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/providers/aihubmix/disable", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 disabling provider, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/providers/aihubmix/enable", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 enabling provider, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDisableUnknownProviderReturnsBadRequest(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/providers/does-not-exist/disable", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body errorPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "provider_not_found" {
		t.Errorf("expected code provider_not_found, got %q", body.Code)
	}
	if body.Message == "" {
		t.Error("expected a non-empty message")
	}
}

func TestGetUnknownRunReturnsNotFoundWithCode(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "not_found" {
		t.Errorf("expected code not_found, got %q", body.Code)
	}
}
