package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAIHubMixCreateAndPollAndDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/videos":
			json.NewEncoder(w).Encode(map[string]any{"id": "vid-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/videos/vid-1":
			json.NewEncoder(w).Encode(map[string]any{"status": "completed", "video_url": requestOrigin(r) + "/content/vid-1"})
		case r.URL.Path == "/content/vid-1":
			w.Write([]byte("fake-mp4-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewAIHubMixProvider(AIHubMixConfig{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		RequestTimeout:  5 * time.Second,
		DownloadTimeout: 5 * time.Second,
	}, nil)

	ctx := context.Background()
	taskID, err := p.CreateTask(ctx, CreateRequest{Prompt: "a cat", Duration: 8, Resolution: "horizontal"})
	if err != nil {
		t.Fatalf("create task failed: %v", err)
	}
	if taskID != "vid-1" {
		t.Fatalf("expected vid-1, got %s", taskID)
	}

	status, err := p.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("get task failed: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", status.Status)
	}

	dest := filepath.Join(t.TempDir(), "out.mp4")
	if err := p.DownloadVideo(ctx, taskID, status.VideoURL, dest); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "fake-mp4-bytes" {
		t.Errorf("unexpected file contents: %q", data)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected tmp file to be cleaned up after rename")
	}
}

func TestAIHubMixRejectsUnsupportedDuration(t *testing.T) {
	p := NewAIHubMixProvider(AIHubMixConfig{BaseURL: "http://unused", APIKey: "k", RequestTimeout: time.Second}, nil)
	_, err := p.CreateTask(context.Background(), CreateRequest{Prompt: "x", Duration: 99, Resolution: "horizontal"})
	if err == nil {
		t.Fatal("expected error for unsupported duration")
	}
}

func TestAIHubMixRateLimitSurfacesAsClassifiableMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewAIHubMixProvider(AIHubMixConfig{BaseURL: srv.URL, APIKey: "k", RequestTimeout: time.Second}, nil)
	_, err := p.CreateTask(context.Background(), CreateRequest{Prompt: "x", Duration: 8, Resolution: "horizontal"})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
}

func TestFactoryUnknownProviderErrors(t *testing.T) {
	f := NewFactory()
	if _, err := f.Get("nope"); err == nil {
		t.Fatal("expected error for unknown provider id")
	}
}

func requestOrigin(r *http.Request) string {
	return "http://" + r.Host
}
