package store

import "testing"

func TestCreateRunMaterializesTasks(t *testing.T) {
	s := New()
	sb := s.CreateStoryboard("board", "/tmp/board.txt", []Segment{
		{SegmentIndex: 1, PromptText: "a"},
		{SegmentIndex: 2, PromptText: "b"},
	})

	segs := s.ListSegments(sb.ID)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}

	run := s.CreateRun(sb.ID, []Task{
		{SegmentID: segs[0].ID, SegmentIndex: 1, VersionIndex: 1},
		{SegmentID: segs[1].ID, SegmentIndex: 2, VersionIndex: 1},
	}, map[string]any{"routing_strategy": "default"})

	if run.TotalTasks != 2 {
		t.Errorf("expected total_tasks 2, got %d", run.TotalTasks)
	}
	if run.Status != RunRunning {
		t.Errorf("expected new run to be running, got %s", run.Status)
	}

	tasks := s.ListTasks(run.ID)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != TaskQueued {
			t.Errorf("expected queued task, got %s", task.Status)
		}
	}
}

func TestIncrementRunCountsTallyByStatus(t *testing.T) {
	s := New()
	sb := s.CreateStoryboard("board", "", []Segment{{SegmentIndex: 1}})
	segs := s.ListSegments(sb.ID)
	run := s.CreateRun(sb.ID, []Task{{SegmentID: segs[0].ID, SegmentIndex: 1, VersionIndex: 1}}, nil)

	s.IncrementRunCounts(run.ID, TaskCompleted)
	s.IncrementRunCounts(run.ID, TaskFailed)
	s.IncrementRunCounts(run.ID, TaskDownloadFailed)

	got, ok := s.GetRun(run.ID)
	if !ok {
		t.Fatal("run vanished")
	}
	if got.Completed != 1 || got.Failed != 1 || got.DownloadFailed != 1 {
		t.Errorf("got completed=%d failed=%d download_failed=%d", got.Completed, got.Failed, got.DownloadFailed)
	}
}

func TestRecountRunDerivesStatusFromTasks(t *testing.T) {
	s := New()
	sb := s.CreateStoryboard("board", "", []Segment{{SegmentIndex: 1}, {SegmentIndex: 2}})
	segs := s.ListSegments(sb.ID)
	run := s.CreateRun(sb.ID, []Task{
		{SegmentID: segs[0].ID, SegmentIndex: 1, VersionIndex: 1},
		{SegmentID: segs[1].ID, SegmentIndex: 2, VersionIndex: 1},
	}, nil)
	tasks := s.ListTasks(run.ID)

	completed := TaskCompleted
	s.UpdateTask(tasks[0].ID, TaskUpdate{Status: &completed})
	failed := TaskFailed
	s.UpdateTask(tasks[1].ID, TaskUpdate{Status: &failed})

	recounted, ok := s.RecountRun(run.ID)
	if !ok {
		t.Fatal("run vanished")
	}
	if recounted.Status != RunFailed {
		t.Errorf("expected run to be failed once any task failed, got %s", recounted.Status)
	}
	if recounted.Completed != 1 || recounted.Failed != 1 {
		t.Errorf("got completed=%d failed=%d", recounted.Completed, recounted.Failed)
	}
}

func TestRetryTaskResetsToQueued(t *testing.T) {
	s := New()
	sb := s.CreateStoryboard("board", "", []Segment{{SegmentIndex: 1}})
	segs := s.ListSegments(sb.ID)
	run := s.CreateRun(sb.ID, []Task{{SegmentID: segs[0].ID, SegmentIndex: 1, VersionIndex: 1}}, nil)
	tasks := s.ListTasks(run.ID)

	failed := TaskFailed
	errMsg := "boom"
	errCode := "server_error"
	retryable := true
	s.UpdateTask(tasks[0].ID, TaskUpdate{Status: &failed, ErrorMsg: &errMsg, ErrorCode: &errCode, Retryable: &retryable})

	retried, ok := s.RetryTask(tasks[0].ID)
	if !ok {
		t.Fatal("task vanished")
	}
	if retried.Status != TaskQueued || retried.ErrorMsg != "" || retried.ErrorCode != "" || retried.Retryable != nil {
		t.Errorf("expected clean queued task, got %+v", retried)
	}
}

func TestGetRunUnknownReturnsFalse(t *testing.T) {
	s := New()
	if _, ok := s.GetRun("missing"); ok {
		t.Error("expected ok=false for unknown run")
	}
}
