// Package runmanager drives a submitted run to completion: it resolves
// provider candidates per task, dispatches a bounded pool of workers,
// and keeps the store's run counters in sync as tasks finish (spec
// §4.8, grounded on the original runner.py RunManager).
package runmanager

import (
	"context"
	"log/slog"

	"project-tachyon/internal/classifier"
	"project-tachyon/internal/prompt"
	"project-tachyon/internal/provider"
	"project-tachyon/internal/router"
	"project-tachyon/internal/store"
	"project-tachyon/internal/worker"
)

// TaskJob is one task's worker input plus the store identifiers needed
// to report its outcome back.
type TaskJob struct {
	TaskID  string
	Request worker.Request
}

// Manager coordinates workers against the shared store, router, and
// provider factory.
type Manager struct {
	store      *store.Store
	router     *router.Router
	factory    *provider.Factory
	classifier *classifier.Classifier
	worker     *worker.Worker
	log        *slog.Logger
}

// New builds a Manager.
func New(s *store.Store, r *router.Router, f *provider.Factory, c *classifier.Classifier, w *worker.Worker, log *slog.Logger) *Manager {
	return &Manager{store: s, router: r, factory: f, classifier: c, worker: w, log: log}
}

// RunConstraints bundles the per-task capability requirements the
// router needs, computed once per task from its segment.
type RunConstraints struct {
	ModelID         string
	RoutingStrategy string
	Duration        int
	Resolution      string
	IsPro           bool
	RequiresImage   bool
}

// ExecuteRun resolves candidates for every task, dispatches up to
// concurrency workers at a time, and updates the store's run counters as
// each task reaches a terminal state. It runs synchronously; callers
// that want fire-and-forget semantics (as command.SubmitRun does) invoke
// this in its own goroutine.
func (m *Manager) ExecuteRun(ctx context.Context, runID string, jobs []TaskJob, constraints map[string]RunConstraints, concurrency int) {
	selections := make(map[string][]router.Candidate, len(jobs))
	strategies := make(map[string]router.Strategy, len(jobs))
	failures := make(map[string]string, len(jobs))

	for _, job := range jobs {
		c := constraints[job.TaskID]
		strategy := router.Normalize(c.RoutingStrategy)
		strategies[job.TaskID] = strategy
		candidates, err := m.router.Resolve(c.ModelID, strategy, router.Constraints{
			RequiredDurations:    []int{c.Duration},
			RequiredResolutions:  []string{c.Resolution},
			RequiresPro:          c.IsPro,
			RequiresImageToVideo: c.RequiresImage,
		})
		if err != nil {
			failures[job.TaskID] = err.Error()
			continue
		}
		selections[job.TaskID] = candidates
	}

	stampUniformProvider(m.store, runID, selections, failures)

	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make(chan store.TaskStatus, len(jobs))

	for _, job := range jobs {
		job := job
		strategy := strategies[job.TaskID]
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			status := m.runTask(ctx, runID, job, selections[job.TaskID], failures[job.TaskID], strategy)
			results <- status
		}()
	}

	for range jobs {
		status := <-results
		m.store.IncrementRunCounts(runID, status)
	}

	finalizeRun(m.store, runID)
}

// RetryTask re-enters the same worker path for a single previously
// failed task, then recomputes the run's counters from scratch rather
// than incrementing (spec §4.8 retry_task: counts are derived, not
// accumulated, so a retry never double-counts its own prior failure).
func (m *Manager) RetryTask(ctx context.Context, runID string, job TaskJob, constraints RunConstraints) {
	strategy := router.Normalize(constraints.RoutingStrategy)
	candidates, err := m.router.Resolve(constraints.ModelID, strategy, router.Constraints{
		RequiredDurations:    []int{constraints.Duration},
		RequiredResolutions:  []string{constraints.Resolution},
		RequiresPro:          constraints.IsPro,
		RequiresImageToVideo: constraints.RequiresImage,
	})
	failMsg := ""
	if err != nil {
		candidates = nil
		failMsg = "no enabled provider for task"
	}

	m.runTask(ctx, runID, job, candidates, failMsg, strategy)
	m.store.RecountRun(runID)
}

func (m *Manager) runTask(ctx context.Context, runID string, job TaskJob, candidates []router.Candidate, failureMessage string, strategy router.Strategy) store.TaskStatus {
	if len(candidates) == 0 {
		msg := failureMessage
		if msg == "" {
			msg = "no enabled provider for task"
		}
		status := store.TaskFailed
		code := "no_provider"
		retryable := false
		m.store.UpdateTask(job.TaskID, store.TaskUpdate{
			Status:    &status,
			ErrorMsg:  &msg,
			ErrorCode: &code,
			Retryable: &retryable,
		})
		return status
	}

	fallbackStatus := store.TaskFailed
	fallbackMsg := "no candidate produced a usable provider client"
	last := store.TaskUpdate{Status: &fallbackStatus, ErrorMsg: &fallbackMsg}
	lastStatus := store.TaskFailed

	for i, cand := range candidates {
		running := store.TaskRunning
		m.store.UpdateTask(job.TaskID, store.TaskUpdate{
			Status:          &running,
			ProviderID:      &cand.ProviderID,
			ProviderModelID: &cand.ProviderModelID,
		})

		client, err := m.factory.Get(cand.ProviderID)
		if err != nil {
			m.log.Error("no client registered for provider", "provider_id", cand.ProviderID, "error", err)
			continue
		}

		req := job.Request
		req.ProviderModelID = cand.ProviderModelID
		result, err := m.worker.Run(ctx, client, req)
		if err != nil {
			m.log.Error("worker run aborted", "task_id", job.TaskID, "error", err)
			continue
		}

		status := mapOutcome(result)
		var errCode string
		var retryablePtr *bool
		if status != store.TaskCompleted {
			if result.LocalStatus == "download_failed" {
				errCode = "download_failed"
				no := false
				retryablePtr = &no
			} else {
				classification := m.classifier.Classify(result.ErrorMsg)
				errCode = string(classification.Kind)
				retryablePtr = &classification.Retryable
			}
		}

		errMsg := result.ErrorMsg
		videoURL := result.VideoURL
		fullPrompt := result.FullPrompt
		videoPath := result.VideoPath
		metaPath := result.MetadataPath

		last = store.TaskUpdate{
			Status:       &status,
			FullPrompt:   &fullPrompt,
			ErrorMsg:     &errMsg,
			VideoURL:     &videoURL,
			VideoPath:    &videoPath,
			MetadataPath: &metaPath,
			ErrorCode:    &errCode,
			Retryable:    retryablePtr,
		}
		lastStatus = status

		shouldSwitch := strategy == router.Failover &&
			status == store.TaskFailed &&
			result.LocalStatus != "download_failed" &&
			retryablePtr != nil && *retryablePtr &&
			i < len(candidates)-1

		if shouldSwitch {
			continue
		}
		break
	}

	m.store.UpdateTask(job.TaskID, last)
	return lastStatus
}

func mapOutcome(result worker.Result) store.TaskStatus {
	if result.LocalStatus == "download_failed" {
		return store.TaskDownloadFailed
	}
	switch result.Outcome {
	case worker.OutcomeComplete, worker.OutcomeSkipped, worker.OutcomeDryRun:
		return store.TaskCompleted
	default:
		return store.TaskFailed
	}
}

// stampUniformProvider mirrors runner.py's behavior of recording a
// single provider/model pair on the Run only when every task's first
// candidate agrees — otherwise the run's provider fields are left blank
// since no single answer would be accurate.
func stampUniformProvider(s *store.Store, runID string, selections map[string][]router.Candidate, failures map[string]string) {
	if len(failures) > 0 {
		s.UpdateRunProvider(runID, "", "")
		return
	}
	var chosen *router.Candidate
	uniform := true
	for _, candidates := range selections {
		if len(candidates) == 0 {
			continue
		}
		if chosen == nil {
			c := candidates[0]
			chosen = &c
			continue
		}
		if *chosen != candidates[0] {
			uniform = false
			break
		}
	}
	if uniform && chosen != nil {
		s.UpdateRunProvider(runID, chosen.ProviderID, chosen.ProviderModelID)
	} else {
		s.UpdateRunProvider(runID, "", "")
	}
}

func finalizeRun(s *store.Store, runID string) {
	run, ok := s.GetRun(runID)
	if !ok {
		return
	}
	status := store.RunCompleted
	if run.Failed > 0 || run.DownloadFailed > 0 {
		status = store.RunFailed
	}
	s.SetRunStatus(runID, status)
}

// PromptPreview is exposed so callers building TaskJob.Request can
// reuse the same prompt assembly the worker performs internally when
// they need a preview without actually running a task (e.g. dry-run
// listings in the API layer).
func PromptPreview(seg worker.SegmentInput) string {
	return prompt.Build(prompt.Segment{
		PromptText:     seg.PromptText,
		Asset:          seg.Asset,
		DirectorIntent: seg.DirectorIntent,
	})
}
