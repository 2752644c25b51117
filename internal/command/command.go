// Package command is the sanctioned entry point external collaborators
// (the diagnostics HTTP surface, in this rewrite) call into. It is the
// only thing that touches the store, router, and run manager directly —
// spec §4.1's Command Interface contract.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"project-tachyon/internal/catalog"
	"project-tachyon/internal/ids"
	"project-tachyon/internal/layout"
	"project-tachyon/internal/prompt"
	"project-tachyon/internal/rangespec"
	"project-tachyon/internal/runmanager"
	"project-tachyon/internal/store"
	"project-tachyon/internal/worker"
)

// Commands wires the Store, Catalog, and Run Manager together behind
// the handful of operations the control plane is allowed to invoke.
type Commands struct {
	store      *store.Store
	catalog    *catalog.Catalog
	runManager *runmanager.Manager
	outputRoot string
	log        *slog.Logger
}

// New builds a Commands instance. outputRoot is the default base
// directory for the centralized output layout.
func New(s *store.Store, c *catalog.Catalog, rm *runmanager.Manager, outputRoot string, log *slog.Logger) *Commands {
	return &Commands{store: s, catalog: c, runManager: rm, outputRoot: outputRoot, log: log}
}

// SubmitRunRequest is the submit_run command's argument bundle (spec
// §4.1).
type SubmitRunRequest struct {
	StoryboardID    string
	ModelID         string
	RoutingStrategy string
	GenCount        int
	SegmentRange    string
	Concurrency     int
	DryRun          bool
	Force           bool
	OutputLayout    layout.Mode
	CustomPath      string
}

// RunDescriptor is the public view of a Run returned to callers.
type RunDescriptor struct {
	ID         string
	Status     store.RunStatus
	TotalTasks int
}

// ValidationError marks a command rejection the caller should surface as
// a 4xx, distinct from an internal failure. Code is the machine-readable
// half of the {code, message, details} shape the diagnostics API emits;
// Detail carries any structured context worth passing through verbatim.
type ValidationError struct {
	Code   string
	msg    string
	Detail any
}

func (e *ValidationError) Error() string { return "validation_error: " + e.msg }

func validationErrorf(code, format string, args ...any) error {
	return &ValidationError{Code: code, msg: fmt.Sprintf(format, args...)}
}

// SubmitRun validates the request, materializes a Run and its Tasks,
// and kicks off asynchronous execution. It returns as soon as the Run
// exists — task execution continues in the background.
func (c *Commands) SubmitRun(ctx context.Context, req SubmitRunRequest) (RunDescriptor, error) {
	if req.GenCount < 1 || req.GenCount > 10 {
		return RunDescriptor{}, validationErrorf("invalid_gen_count", "gen_count must be between 1 and 10, got %d", req.GenCount)
	}
	if req.Concurrency < 1 || req.Concurrency > 50 {
		return RunDescriptor{}, validationErrorf("invalid_concurrency", "concurrency must be between 1 and 50, got %d", req.Concurrency)
	}
	if req.OutputLayout == layout.Custom && strings.TrimSpace(req.CustomPath) == "" {
		return RunDescriptor{}, validationErrorf("missing_output_path", "output_path is required for custom output layout")
	}

	model, ok, err := c.catalog.GetModel(req.ModelID)
	if err != nil {
		return RunDescriptor{}, fmt.Errorf("command: load model: %w", err)
	}
	if !ok || !model.Enabled {
		return RunDescriptor{}, validationErrorf("unknown_model", "model %q is unknown or disabled", req.ModelID)
	}

	storyboard, ok := c.store.GetStoryboard(req.StoryboardID)
	if !ok {
		return RunDescriptor{}, validationErrorf("storyboard_not_found", "storyboard %q not found", req.StoryboardID)
	}
	segments := c.store.ListSegments(req.StoryboardID)
	if len(segments) == 0 {
		return RunDescriptor{}, validationErrorf("empty_storyboard", "storyboard %q has no segments", req.StoryboardID)
	}

	allIndices := make([]int, 0, len(segments))
	bySegmentIndex := make(map[int]store.Segment, len(segments))
	for _, seg := range segments {
		allIndices = append(allIndices, seg.SegmentIndex)
		bySegmentIndex[seg.SegmentIndex] = seg
	}

	selectedIndices, err := rangespec.Parse(req.SegmentRange, allIndices)
	if err != nil {
		return RunDescriptor{}, &ValidationError{Code: "invalid_segment_range", msg: err.Error()}
	}

	sourceDir := filepath.Dir(storyboard.FilePath)
	stem := strings.TrimSuffix(filepath.Base(storyboard.FilePath), filepath.Ext(storyboard.FilePath))

	var tasks []store.Task
	type taskPlan struct {
		segment store.Segment
		version int
		dir     string
	}
	var plans []taskPlan

	for _, idx := range selectedIndices {
		seg := bySegmentIndex[idx]
		for v := 1; v <= req.GenCount; v++ {
			dir, err := layout.ResolveSegmentDir(layout.Request{
				Mode:                req.OutputLayout,
				OutputRoot:          c.outputRoot,
				CustomPath:          req.CustomPath,
				StoryboardID:        storyboard.ID,
				StoryboardSourceDir: sourceDir,
				StoryboardStem:      stem,
				SegmentIndex:        idx,
			})
			if err != nil {
				return RunDescriptor{}, &ValidationError{Code: "invalid_output_layout", msg: err.Error()}
			}
			tasks = append(tasks, store.Task{
				SegmentID:    seg.ID,
				SegmentIndex: idx,
				VersionIndex: v,
				OutputDir:    dir,
			})
			plans = append(plans, taskPlan{segment: seg, version: v, dir: dir})
		}
	}

	config := map[string]any{
		"model_id":         req.ModelID,
		"routing_strategy": req.RoutingStrategy,
		"gen_count":        req.GenCount,
		"concurrency":      req.Concurrency,
		"dry_run":          req.DryRun,
		"force":            req.Force,
		"output_layout":    string(req.OutputLayout),
	}
	run := c.store.CreateRun(storyboard.ID, tasks, config)
	// run.TaskIDs keeps creation order, which is the order of plans;
	// ListTasks walks a map and has no defined order.
	createdTasks := make([]store.Task, 0, len(run.TaskIDs))
	for _, id := range run.TaskIDs {
		t, _ := c.store.GetTask(id)
		createdTasks = append(createdTasks, t)
	}

	jobs := make([]runmanager.TaskJob, 0, len(createdTasks))
	constraints := make(map[string]runmanager.RunConstraints, len(createdTasks))
	for i, t := range createdTasks {
		plan := plans[i]
		outputName := ids.TaskOutputName(plan.segment.SegmentIndex, plan.version, time.Now().Unix(), t.ID)
		jobs = append(jobs, runmanager.TaskJob{
			TaskID: t.ID,
			Request: worker.Request{
				TaskID:             t.ID,
				SourceFile:         storyboard.FilePath,
				SegmentIndex:       plan.segment.SegmentIndex,
				VersionIndex:       plan.version,
				OutputDir:          plan.dir,
				OutputFilenameBase: outputName,
				DryRun:             req.DryRun,
				Force:              req.Force,
				Segment:            toSegmentInput(plan.segment),
			},
		})
		constraints[t.ID] = runmanager.RunConstraints{
			ModelID:         req.ModelID,
			RoutingStrategy: req.RoutingStrategy,
			Duration:        plan.segment.DurationSeconds,
			Resolution:      plan.segment.Resolution,
			IsPro:           plan.segment.IsPro,
			RequiresImage:   plan.segment.ImageURL != "",
		}
	}

	go c.runManager.ExecuteRun(ctx, run.ID, jobs, constraints, req.Concurrency)

	return RunDescriptor{ID: run.ID, Status: run.Status, TotalTasks: run.TotalTasks}, nil
}

// RetryTask resets a task to queued and re-enters the Run Manager path
// for it alone (spec §4.1 retry_task).
func (c *Commands) RetryTask(ctx context.Context, taskID string) (store.Task, error) {
	task, ok := c.store.GetTask(taskID)
	if !ok {
		return store.Task{}, validationErrorf("task_not_found", "task %q not found", taskID)
	}
	run, ok := c.store.GetRun(task.RunID)
	if !ok {
		return store.Task{}, validationErrorf("run_not_found", "run for task %q not found", taskID)
	}

	retried, ok := c.store.RetryTask(taskID)
	if !ok {
		return store.Task{}, validationErrorf("task_not_found", "task %q not found", taskID)
	}
	c.store.SetRunStatus(run.ID, store.RunRunning)

	seg, ok := c.segmentForTask(retried)
	if !ok {
		return store.Task{}, validationErrorf("segment_not_found", "segment for task %q not found", taskID)
	}

	modelID, _ := run.Config["model_id"].(string)
	routingStrategy, _ := run.Config["routing_strategy"].(string)
	dryRun, _ := run.Config["dry_run"].(bool)
	force, _ := run.Config["force"].(bool)

	outputName := ids.TaskOutputName(seg.SegmentIndex, retried.VersionIndex, time.Now().Unix(), retried.ID)
	job := runmanager.TaskJob{
		TaskID: retried.ID,
		Request: worker.Request{
			TaskID:             retried.ID,
			SegmentIndex:       seg.SegmentIndex,
			VersionIndex:       retried.VersionIndex,
			OutputDir:          retried.OutputDir,
			OutputFilenameBase: outputName,
			DryRun:             dryRun,
			Force:              force,
			Segment:            toSegmentInput(seg),
		},
	}
	constraints := runmanager.RunConstraints{
		ModelID:         modelID,
		RoutingStrategy: routingStrategy,
		Duration:        seg.DurationSeconds,
		Resolution:      seg.Resolution,
		IsPro:           seg.IsPro,
		RequiresImage:   seg.ImageURL != "",
	}

	go c.runManager.RetryTask(ctx, run.ID, job, constraints)

	return retried, nil
}

// ListProviders is a pure read against the Catalog.
func (c *Commands) ListProviders() ([]catalog.Provider, error) {
	return c.catalog.ListProviders()
}

// EnableProvider flips a provider's enabled flag on, making it eligible
// for routing again.
func (c *Commands) EnableProvider(providerID string) error {
	return c.setProviderEnabled(providerID, true)
}

// DisableProvider flips a provider's enabled flag off; the router will no
// longer offer it as a candidate.
func (c *Commands) DisableProvider(providerID string) error {
	return c.setProviderEnabled(providerID, false)
}

func (c *Commands) setProviderEnabled(providerID string, enabled bool) error {
	if _, ok, err := c.catalog.GetProvider(providerID); err != nil {
		return fmt.Errorf("command: load provider: %w", err)
	} else if !ok {
		return validationErrorf("provider_not_found", "provider %q not found", providerID)
	}
	return c.catalog.SetProviderEnabled(providerID, enabled)
}

// UpdateProviderPriority changes a provider's priority ordering used by
// the router's default strategy (spec §4.5: lower priority sorts first).
func (c *Commands) UpdateProviderPriority(providerID string, priority int) error {
	if _, ok, err := c.catalog.GetProvider(providerID); err != nil {
		return fmt.Errorf("command: load provider: %w", err)
	} else if !ok {
		return validationErrorf("provider_not_found", "provider %q not found", providerID)
	}
	return c.catalog.SetProviderPriority(providerID, priority)
}

// UpdateProviderWeight changes a provider's relative weight used by the
// router's weighted strategy.
func (c *Commands) UpdateProviderWeight(providerID string, weight int) error {
	if weight < 1 {
		return validationErrorf("invalid_weight", "weight must be at least 1, got %d", weight)
	}
	if _, ok, err := c.catalog.GetProvider(providerID); err != nil {
		return fmt.Errorf("command: load provider: %w", err)
	} else if !ok {
		return validationErrorf("provider_not_found", "provider %q not found", providerID)
	}
	return c.catalog.SetProviderWeight(providerID, weight)
}

// EnableModel flips a model's enabled flag on, making it acceptable to
// submit_run again.
func (c *Commands) EnableModel(modelID string) error {
	return c.setModelEnabled(modelID, true)
}

// DisableModel flips a model's enabled flag off.
func (c *Commands) DisableModel(modelID string) error {
	return c.setModelEnabled(modelID, false)
}

func (c *Commands) setModelEnabled(modelID string, enabled bool) error {
	if _, ok, err := c.catalog.GetModel(modelID); err != nil {
		return fmt.Errorf("command: load model: %w", err)
	} else if !ok {
		return validationErrorf("model_not_found", "model %q not found", modelID)
	}
	return c.catalog.SetModelEnabled(modelID, enabled)
}

// GetRun is a pure read against the Store.
func (c *Commands) GetRun(runID string) (store.Run, bool) {
	return c.store.GetRun(runID)
}

// ListTasks is a pure read against the Store.
func (c *Commands) ListTasks(runID string) []store.Task {
	return c.store.ListTasks(runID)
}

// GetTask is a pure read against the Store.
func (c *Commands) GetTask(taskID string) (store.Task, bool) {
	return c.store.GetTask(taskID)
}

func (c *Commands) segmentForTask(t store.Task) (store.Segment, bool) {
	run, ok := c.store.GetRun(t.RunID)
	if !ok {
		return store.Segment{}, false
	}
	for _, seg := range c.store.ListSegments(run.StoryboardID) {
		if seg.ID == t.SegmentID {
			return seg, true
		}
	}
	return store.Segment{}, false
}

func toSegmentInput(seg store.Segment) worker.SegmentInput {
	return worker.SegmentInput{
		PromptText:      seg.PromptText,
		DirectorIntent:  seg.DirectorIntent,
		Asset:           toPromptAsset(seg.Asset),
		DurationSeconds: seg.DurationSeconds,
		Resolution:      seg.Resolution,
		IsPro:           seg.IsPro,
		ImageURL:        seg.ImageURL,
	}
}

func toPromptAsset(asset *store.Asset) *prompt.Asset {
	if asset == nil {
		return nil
	}
	characters := make([]prompt.Character, 0, len(asset.Characters))
	for _, c := range asset.Characters {
		characters = append(characters, prompt.Character{ID: c.ID, Name: c.Name})
	}
	return &prompt.Asset{Scene: asset.Scene, Props: asset.Props, Characters: characters}
}
