// Package store holds the process-local, volatile records a run touches:
// storyboards, segments, runs, and tasks. None of this survives a
// restart — the catalog package is what persists (spec §3, §4).
package store

import (
	"sync"
	"time"

	"project-tachyon/internal/ids"
)

// Asset mirrors the scene/props/characters block attached to a Segment.
type Asset struct {
	Scene      string
	Props      []string
	Characters []Character
}

// Character is one roster entry on an Asset.
type Character struct {
	ID   string
	Name string
}

// Segment is one row of a parsed storyboard.
type Segment struct {
	ID              string
	StoryboardID    string
	SegmentIndex    int
	PromptText      string
	DirectorIntent  string
	ImageURL        string
	DurationSeconds int
	Resolution      string
	IsPro           bool
	Asset           *Asset
}

// Storyboard is the parsed source file plus the segments derived from it.
type Storyboard struct {
	ID         string
	Name       string
	FilePath   string
	CreatedAt  time.Time
	SegmentIDs []string
}

// TaskStatus is the lifecycle state of a single generation task.
type TaskStatus string

const (
	TaskQueued         TaskStatus = "queued"
	TaskRunning        TaskStatus = "running"
	TaskCompleted      TaskStatus = "completed"
	TaskFailed         TaskStatus = "failed"
	TaskDownloadFailed TaskStatus = "download_failed"
)

// Task is one unit of generation work: one segment, one version.
type Task struct {
	ID              string
	RunID           string
	SegmentID       string
	SegmentIndex    int
	VersionIndex    int
	OutputDir       string
	Status          TaskStatus
	VideoURL        string
	MetadataURL     string
	FullPrompt      string
	ErrorMsg        string
	ErrorCode       string
	Retryable       *bool
	VideoPath       string
	MetadataPath    string
	ProviderID      string
	ProviderModelID string
}

// RunStatus is the aggregate lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run groups the tasks submitted together by one submit_run call.
type Run struct {
	ID              string
	StoryboardID    string
	Status          RunStatus
	TotalTasks      int
	Completed       int
	Failed          int
	DownloadFailed  int
	CreatedAt       time.Time
	TaskIDs         []string
	Config          map[string]any
	ProviderID      string
	ProviderModelID string
}

// Store is the in-memory registry of storyboards, segments, runs and
// tasks for the life of the process. A single mutex guards everything;
// all reads return copies so callers can't mutate internal state.
type Store struct {
	mu          sync.Mutex
	storyboards map[string]*Storyboard
	segments    map[string]*Segment
	runs        map[string]*Run
	tasks       map[string]*Task
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		storyboards: make(map[string]*Storyboard),
		segments:    make(map[string]*Segment),
		runs:        make(map[string]*Run),
		tasks:       make(map[string]*Task),
	}
}

// CreateStoryboard registers a parsed storyboard and its segments.
func (s *Store) CreateStoryboard(name, filePath string, segments []Segment) Storyboard {
	s.mu.Lock()
	defer s.mu.Unlock()

	storyboardID := ids.New()
	segmentIDs := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg := seg
		seg.ID = ids.New()
		seg.StoryboardID = storyboardID
		segmentIDs = append(segmentIDs, seg.ID)
		s.segments[seg.ID] = &seg
	}

	record := Storyboard{
		ID:         storyboardID,
		Name:       name,
		FilePath:   filePath,
		CreatedAt:  time.Now().UTC(),
		SegmentIDs: segmentIDs,
	}
	s.storyboards[storyboardID] = &record
	return record
}

// GetStoryboard returns the storyboard and ok=false if it doesn't exist.
func (s *Store) GetStoryboard(storyboardID string) (Storyboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sb, ok := s.storyboards[storyboardID]
	if !ok {
		return Storyboard{}, false
	}
	return *sb, true
}

// ListSegments returns every segment belonging to storyboardID, ordered
// by SegmentIndex.
func (s *Store) ListSegments(storyboardID string) []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, 0)
	for _, seg := range s.segments {
		if seg.StoryboardID == storyboardID {
			out = append(out, *seg)
		}
	}
	sortSegmentsByIndex(out)
	return out
}

func sortSegmentsByIndex(segs []Segment) {
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j].SegmentIndex < segs[j-1].SegmentIndex; j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}
}

// CreateRun materializes a Run and one Task per entry in tasks.
func (s *Store) CreateRun(storyboardID string, tasks []Task, config map[string]any) Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := ids.New()
	taskIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t := t
		t.ID = ids.New()
		t.RunID = runID
		t.Status = TaskQueued
		taskIDs = append(taskIDs, t.ID)
		s.tasks[t.ID] = &t
	}

	run := Run{
		ID:           runID,
		StoryboardID: storyboardID,
		Status:       RunRunning,
		TotalTasks:   len(taskIDs),
		CreatedAt:    time.Now().UTC(),
		TaskIDs:      taskIDs,
		Config:       config,
	}
	s.runs[runID] = &run
	return run
}

// GetRun returns a copy of the run, or ok=false if unknown.
func (s *Store) GetRun(runID string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return Run{}, false
	}
	return *r, true
}

// ListTasks returns every task belonging to runID. An empty runID
// returns every task in the store.
func (s *Store) ListTasks(runID string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0)
	for _, t := range s.tasks {
		if runID == "" || t.RunID == runID {
			out = append(out, *t)
		}
	}
	return out
}

// GetTask returns a copy of the task, or ok=false if unknown.
func (s *Store) GetTask(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// TaskUpdate carries only the fields a caller wants to change; nil
// fields are left as they are, and a non-nil field is applied even when
// it points at a zero value.
type TaskUpdate struct {
	Status          *TaskStatus
	VideoURL        *string
	MetadataURL     *string
	FullPrompt      *string
	ErrorMsg        *string
	ErrorCode       *string
	Retryable       *bool
	VideoPath       *string
	MetadataPath    *string
	ProviderID      *string
	ProviderModelID *string
}

// UpdateTask applies a partial update to a task in place.
func (s *Store) UpdateTask(taskID string, u TaskUpdate) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.VideoURL != nil {
		t.VideoURL = *u.VideoURL
	}
	if u.MetadataURL != nil {
		t.MetadataURL = *u.MetadataURL
	}
	if u.FullPrompt != nil {
		t.FullPrompt = *u.FullPrompt
	}
	if u.ErrorMsg != nil {
		t.ErrorMsg = *u.ErrorMsg
	}
	if u.ErrorCode != nil {
		t.ErrorCode = *u.ErrorCode
	}
	if u.Retryable != nil {
		t.Retryable = u.Retryable
	}
	if u.VideoPath != nil {
		t.VideoPath = *u.VideoPath
	}
	if u.MetadataPath != nil {
		t.MetadataPath = *u.MetadataPath
	}
	if u.ProviderID != nil {
		t.ProviderID = *u.ProviderID
	}
	if u.ProviderModelID != nil {
		t.ProviderModelID = *u.ProviderModelID
	}
	return *t, true
}

// UpdateRunProvider stamps the provider chosen for an entire run, when
// every task in it resolved to the same (provider, provider_model) pair.
func (s *Store) UpdateRunProvider(runID, providerID, providerModelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return
	}
	r.ProviderID = providerID
	r.ProviderModelID = providerModelID
}

// SetRunStatus overwrites a run's aggregate status directly, used once
// every task has reached a terminal state and the final tally is known.
func (s *Store) SetRunStatus(runID string, status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return
	}
	r.Status = status
}

// IncrementRunCounts bumps exactly one of a run's completed/failed/
// download_failed counters based on a task's terminal status.
func (s *Store) IncrementRunCounts(runID string, status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return
	}
	switch status {
	case TaskCompleted:
		r.Completed++
	case TaskDownloadFailed:
		r.DownloadFailed++
	default:
		r.Failed++
	}
}

// RecountRun recomputes a run's counters and status from scratch by
// scanning its tasks — used after a retry, where incrementing blindly
// would double-count.
func (s *Store) RecountRun(runID string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return Run{}, false
	}

	var completed, failed, downloadFailed int
	hasInFlight := false
	for _, t := range s.tasks {
		if t.RunID != runID {
			continue
		}
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskFailed:
			failed++
		case TaskDownloadFailed:
			downloadFailed++
		case TaskQueued, TaskRunning:
			hasInFlight = true
		}
	}

	r.Completed = completed
	r.Failed = failed
	r.DownloadFailed = downloadFailed
	switch {
	case hasInFlight:
		r.Status = RunRunning
	case failed > 0 || downloadFailed > 0:
		r.Status = RunFailed
	default:
		r.Status = RunCompleted
	}
	return *r, true
}

// RetryTask resets a task back to queued and clears its error fields so
// it can be re-run through the same worker path.
func (s *Store) RetryTask(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	t.Status = TaskQueued
	t.ErrorMsg = ""
	t.ErrorCode = ""
	t.Retryable = nil
	return *t, true
}
