package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	defer l.Close()

	l.Log("127.0.0.1", "POST /runs", 200, "submit_run accepted")
	l.Log("127.0.0.1", "POST /tasks/t1/retry", 404, "unknown task")

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var entries []Entry
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != 200 || entries[1].Status != 404 {
		t.Errorf("unexpected statuses: %+v", entries)
	}
}

func TestLogMirrorsThroughSlogAtWarnOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	l, err := Open(path, log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	l.Log("127.0.0.1", "POST /runs", 200, "submit_run accepted")
	l.Log("127.0.0.1", "POST /tasks/t1/retry", 404, "unknown task")

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "POST /runs") {
		t.Errorf("expected an INFO line for the 200 response, got: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "unknown task") {
		t.Errorf("expected a WARN line for the 404 response, got: %s", out)
	}
}
