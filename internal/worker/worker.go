// Package worker runs the per-task generation state machine described in
// spec §4.6: prompt assembly, submit-and-poll against a provider, and
// terminal metadata writing. One Worker instance is shared by every
// concurrent task; state specific to a single attempt lives in Request.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"project-tachyon/internal/governor"
	"project-tachyon/internal/layout"
	"project-tachyon/internal/prompt"
	"project-tachyon/internal/provider"
)

// minFreeDownloadBytes is a conservative guess at a generated clip's size
// used for the pre-flight free-space check; actual sizes vary by
// resolution and duration but providers don't report one up front.
const minFreeDownloadBytes = 200 * 1024 * 1024

// Outcome is the terminal result of one Run call.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeDryRun   Outcome = "dry_run"
	OutcomeComplete Outcome = "completed"
	OutcomeFailed   Outcome = "failed"
)

// SegmentInput is the subset of a Segment a worker needs to build a
// prompt and a provider request.
type SegmentInput struct {
	PromptText      string
	DirectorIntent  string
	Asset           *prompt.Asset
	DurationSeconds int
	Resolution      string
	IsPro           bool
	ImageURL        string
}

// Request describes one task attempt: which segment, which provider
// model, and where its output files belong.
type Request struct {
	TaskID             string
	SourceFile         string
	SegmentIndex       int
	VersionIndex       int
	Segment            SegmentInput
	OutputDir          string
	OutputFilenameBase string
	ProviderModelID    string
	DryRun             bool
	Force              bool
}

// Result is everything the run manager needs to update the store after
// one attempt.
type Result struct {
	Outcome        Outcome
	ProviderTaskID string
	FullPrompt     string
	VideoURL       string
	ErrorMsg       string
	LocalStatus    string // "", "completed", "failed", or "download_failed" — mirrors metadata.local_status
	VideoPath      string
	MetadataPath   string
}

// Config tunes the poll loop. Durations mirror the *_SECONDS settings in
// spec §6.
type Config struct {
	MaxRetries      int
	JitterMin       time.Duration
	JitterMax       time.Duration
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	PollInitialWait time.Duration
	PollInterval    time.Duration
	MaxPollTime     time.Duration
}

// DefaultConfig matches the constants worker.py hardcodes.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		JitterMin:       500 * time.Millisecond,
		JitterMax:       3 * time.Second,
		BackoffMin:      2 * time.Second,
		BackoffMax:      5 * time.Second,
		PollInitialWait: 20 * time.Second,
		PollInterval:    10 * time.Second,
		MaxPollTime:     2100 * time.Second,
	}
}

// Worker runs one task attempt at a time against a given provider.Client.
// The same Worker is safe for concurrent use: per-attempt state lives in
// Request/Result, not on the Worker.
type Worker struct {
	cfg      Config
	governor *governor.Governor
	log      *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a Worker. gov may be nil, in which case acquire/release is a
// no-op — useful for tests that don't care about concurrency shaping.
func New(cfg Config, gov *governor.Governor, log *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		governor: gov,
		log:      log,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives one task attempt against client to completion: skip check,
// dry-run short-circuit, submit/poll retry loop, and terminal metadata.
// The governor's acquire/release wraps the whole call so it counts as one
// unit of concurrency regardless of how many HTTP round trips it makes.
func (w *Worker) Run(ctx context.Context, client provider.Client, req Request) (Result, error) {
	if w.governor != nil {
		if err := w.governor.Acquire(ctx); err != nil {
			return Result{}, fmt.Errorf("worker: acquire concurrency slot: %w", err)
		}
		defer w.governor.Release()
	}
	return w.runInternal(ctx, client, req)
}

func (w *Worker) videoPath(req Request) string {
	return filepath.Join(req.OutputDir, fmt.Sprintf("%s_%s.mp4", req.OutputFilenameBase, req.TaskID))
}

func (w *Worker) metaPath(req Request) string {
	return filepath.Join(req.OutputDir, fmt.Sprintf("%s_%s.json", req.OutputFilenameBase, req.TaskID))
}

func (w *Worker) runInternal(ctx context.Context, client provider.Client, req Request) (Result, error) {
	videoPath := w.videoPath(req)
	metaPath := w.metaPath(req)

	if !req.Force && layout.IsNonEmptyFile(videoPath) {
		w.log.Info("skipping task, output already exists", "task_id", req.TaskID)
		return Result{Outcome: OutcomeSkipped, VideoPath: videoPath, MetadataPath: metaPath}, nil
	}

	fullPrompt := prompt.Build(prompt.Segment{
		PromptText:     req.Segment.PromptText,
		Asset:          req.Segment.Asset,
		DirectorIntent: req.Segment.DirectorIntent,
	})

	if req.DryRun {
		w.log.Info("dry run", "task_id", req.TaskID, "prompt_preview", truncate(fullPrompt, 100))
		return Result{Outcome: OutcomeDryRun, FullPrompt: fullPrompt, VideoPath: videoPath, MetadataPath: metaPath}, nil
	}

	var lastErr string
	var lastProviderTaskID string

	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			w.log.Info("retrying task", "task_id", req.TaskID, "attempt", attempt, "max_retries", w.cfg.MaxRetries)
			if err := w.sleep(ctx, randDuration(w.cfg.BackoffMin, w.cfg.BackoffMax)); err != nil {
				return Result{}, err
			}
		}
		if err := w.sleep(ctx, randDuration(w.cfg.JitterMin, w.cfg.JitterMax)); err != nil {
			return Result{}, err
		}

		providerTaskID, err := client.CreateTask(ctx, provider.CreateRequest{
			Prompt:        fullPrompt,
			Duration:      req.Segment.DurationSeconds,
			Resolution:    req.Segment.Resolution,
			IsPro:         req.Segment.IsPro,
			ImageURL:      req.Segment.ImageURL,
			ProviderModel: req.ProviderModelID,
		})
		if err != nil {
			w.log.Error("task submission failed", "task_id", req.TaskID, "error", err)
			lastErr = fmt.Sprintf("submission failed: %s", err)
			w.reportError()
			continue
		}
		lastProviderTaskID = providerTaskID
		w.reportSuccess()

		result, terminal, retryLastErr, sleepErr := w.poll(ctx, client, req, providerTaskID, fullPrompt, metaPath, videoPath)
		if sleepErr != nil {
			return Result{}, sleepErr
		}
		if terminal {
			return result, nil
		}
		lastErr = retryLastErr
	}

	w.writeFailureMetadata(metaPath, req, fullPrompt, lastProviderTaskID, lastErr)
	return Result{
		Outcome:      OutcomeFailed,
		FullPrompt:   fullPrompt,
		ErrorMsg:     orDefault(lastErr, "unknown error"),
		LocalStatus:  "failed",
		VideoPath:    videoPath,
		MetadataPath: metaPath,
	}, nil
}

// poll runs the status-polling loop for one submitted provider task.
// terminal=true means the caller should return result as-is; terminal=
// false means the candidate should retry submission with lastErr set.
func (w *Worker) poll(
	ctx context.Context,
	client provider.Client,
	req Request,
	providerTaskID string,
	fullPrompt string,
	metaPath string,
	videoPath string,
) (result Result, terminal bool, lastErr string, sleepErr error) {
	if err := w.sleep(ctx, w.cfg.PollInitialWait); err != nil {
		return Result{}, false, "", err
	}

	deadline := w.now().Add(w.cfg.MaxPollTime)
	for w.now().Before(deadline) {
		status, err := client.GetTask(ctx, providerTaskID)
		if err != nil {
			w.log.Warn("polling warning", "task_id", req.TaskID, "error", err)
			if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
				return Result{}, false, "", err
			}
			continue
		}

		w.log.Debug("task status", "task_id", req.TaskID, "status", status.Status, "progress", status.Progress)

		switch status.Status {
		case provider.StatusCompleted:
			if status.VideoURL == "" {
				w.writeMetadata(metaPath, req, fullPrompt, providerTaskID, status, "failed", "missing video_url in API response")
				w.log.Error("task completed without video_url", "task_id", req.TaskID)
				return Result{
					Outcome:      OutcomeFailed,
					ProviderTaskID: providerTaskID,
					FullPrompt:   fullPrompt,
					ErrorMsg:     "missing video_url in API response",
					LocalStatus:  "failed",
					VideoPath:    videoPath,
					MetadataPath: metaPath,
				}, true, "", nil
			}

			if err := layout.EnsureFreeSpace(req.OutputDir, minFreeDownloadBytes); err != nil {
				w.writeMetadata(metaPath, req, fullPrompt, providerTaskID, status, "download_failed", err.Error())
				w.log.Error("refusing download, insufficient disk space", "task_id", req.TaskID, "error", err)
				return Result{
					Outcome:      OutcomeFailed,
					ProviderTaskID: providerTaskID,
					FullPrompt:   fullPrompt,
					VideoURL:     status.VideoURL,
					ErrorMsg:     err.Error(),
					LocalStatus:  "download_failed",
					VideoPath:    videoPath,
					MetadataPath: metaPath,
				}, true, "", nil
			}

			if err := client.DownloadVideo(ctx, providerTaskID, status.VideoURL, videoPath); err != nil {
				w.log.Error("download failed after generation succeeded, video URL saved in metadata", "task_id", req.TaskID, "video_url", status.VideoURL, "error", err)
				w.writeMetadata(metaPath, req, fullPrompt, providerTaskID, status, "download_failed", fmt.Sprintf("download failed for %s", status.VideoURL))
				return Result{
					Outcome:      OutcomeFailed,
					ProviderTaskID: providerTaskID,
					FullPrompt:   fullPrompt,
					VideoURL:     status.VideoURL,
					ErrorMsg:     fmt.Sprintf("download failed for %s", status.VideoURL),
					LocalStatus:  "download_failed",
					VideoPath:    videoPath,
					MetadataPath: metaPath,
				}, true, "", nil
			}

			w.writeMetadata(metaPath, req, fullPrompt, providerTaskID, status, "completed", "")
			w.log.Info("task completed", "task_id", req.TaskID)
			return Result{
				Outcome:      OutcomeComplete,
				ProviderTaskID: providerTaskID,
				FullPrompt:   fullPrompt,
				VideoURL:     status.VideoURL,
				LocalStatus:  "completed",
				VideoPath:    videoPath,
				MetadataPath: metaPath,
			}, true, "", nil

		case provider.StatusFailed:
			errMsg := "unknown error"
			if status.Raw != nil {
				if m, ok := status.Raw["error_msg"].(string); ok && m != "" {
					errMsg = m
				}
			}
			w.log.Error("task failed provider-side", "task_id", req.TaskID, "error", errMsg)
			return Result{}, false, fmt.Sprintf("api failed: %s", errMsg), nil
		}

		if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
			return Result{}, false, "", err
		}
	}

	w.log.Error("task timed out", "task_id", req.TaskID, "max_poll_time", w.cfg.MaxPollTime)
	return Result{}, false, fmt.Sprintf("timeout after %s", w.cfg.MaxPollTime), nil
}

func (w *Worker) reportError() {
	if w.governor != nil {
		w.governor.ReportError()
	}
}

func (w *Worker) reportSuccess() {
	if w.governor != nil {
		w.governor.ReportSuccess()
	}
}

func (w *Worker) writeFailureMetadata(metaPath string, req Request, fullPrompt, providerTaskID, errMsg string) {
	payload := buildMetadata(req, fullPrompt, providerTaskID, nil, "failed", orDefault(errMsg, "unknown error"))
	writeMetadata(w.log, metaPath, payload)
}

func (w *Worker) writeMetadata(metaPath string, req Request, fullPrompt, providerTaskID string, status provider.TaskStatus, localStatus, errMsg string) {
	payload := buildMetadata(req, fullPrompt, providerTaskID, status.Raw, localStatus, errMsg)
	writeMetadata(w.log, metaPath, payload)
}

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
