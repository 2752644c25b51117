package command

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"project-tachyon/internal/catalog"
	"project-tachyon/internal/classifier"
	"project-tachyon/internal/layout"
	"project-tachyon/internal/provider"
	"project-tachyon/internal/router"
	"project-tachyon/internal/runmanager"
	"project-tachyon/internal/store"
	"project-tachyon/internal/worker"
)

type instantClient struct{}

func (instantClient) CreateTask(ctx context.Context, req provider.CreateRequest) (string, error) {
	return "pt1", nil
}

func (instantClient) GetTask(ctx context.Context, id string) (provider.TaskStatus, error) {
	return provider.TaskStatus{Status: provider.StatusCompleted, VideoURL: "https://example.com/v.mp4"}, nil
}

func (instantClient) DownloadVideo(ctx context.Context, id, videoURL, destPath string) error {
	return os.WriteFile(destPath, []byte("bytes"), 0644)
}

func setup(t *testing.T) (*Commands, *store.Store) {
	t.Helper()
	c, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := catalog.Seed(c); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c.SetProviderEnabled("aihubmix", true)

	s := store.New()
	r := router.New(c)
	f := provider.NewFactory()
	f.Register("aihubmix", func() provider.Client { return instantClient{} })
	cl := classifier.New(classifier.Config{})
	cfg := worker.DefaultConfig()
	cfg.PollInitialWait = 0
	cfg.PollInterval = 0
	cfg.JitterMin = 0
	cfg.JitterMax = 0
	w := worker.New(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rm := runmanager.New(s, r, f, cl, w, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return New(s, c, rm, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestSubmitRunRejectsBadGenCount(t *testing.T) {
	cmds, s := setup(t)
	sb := s.CreateStoryboard("board", filepath.Join(t.TempDir(), "board.txt"), []store.Segment{{SegmentIndex: 1, PromptText: "a"}})

	_, err := cmds.SubmitRun(context.Background(), SubmitRunRequest{
		StoryboardID: sb.ID, ModelID: "sora2", GenCount: 0, Concurrency: 1, SegmentRange: "all", OutputLayout: layout.Centralized,
	})
	if err == nil {
		t.Fatal("expected validation error for gen_count 0")
	}
}

func TestSubmitRunRejectsUnknownModel(t *testing.T) {
	cmds, s := setup(t)
	sb := s.CreateStoryboard("board", filepath.Join(t.TempDir(), "board.txt"), []store.Segment{{SegmentIndex: 1, PromptText: "a"}})

	_, err := cmds.SubmitRun(context.Background(), SubmitRunRequest{
		StoryboardID: sb.ID, ModelID: "nope", GenCount: 1, Concurrency: 1, SegmentRange: "all", OutputLayout: layout.Centralized,
	})
	if err == nil {
		t.Fatal("expected validation error for unknown model")
	}
}

func TestSubmitRunCreatesRunAndCompletesTasks(t *testing.T) {
	cmds, s := setup(t)
	sb := s.CreateStoryboard("board", filepath.Join(t.TempDir(), "board.txt"), []store.Segment{
		{SegmentIndex: 1, PromptText: "a scene", DurationSeconds: 4, Resolution: "horizontal"},
	})

	desc, err := cmds.SubmitRun(context.Background(), SubmitRunRequest{
		StoryboardID: sb.ID,
		ModelID:      "sora2",
		GenCount:     1,
		Concurrency:  1,
		SegmentRange: "all",
		OutputLayout: layout.Centralized,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.TotalTasks != 1 {
		t.Fatalf("expected 1 task, got %d", desc.TotalTasks)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := cmds.GetRun(desc.ID)
		if ok && run.Status != store.RunRunning {
			if run.Status != store.RunCompleted {
				t.Fatalf("expected run to complete, got %s", run.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not complete in time")
}
