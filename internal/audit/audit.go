// Package audit appends a JSON-lines trail of every request the
// diagnostics API handles (any route, any response status), independent
// of the structured application log (spec §9, SUPPLEMENTED FEATURES).
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Entry is one audited command invocation.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	Action    string    `json:"action"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail"`
}

// Logger appends Entry records to a single file, one JSON object per
// line. Writes are serialized through a mutex since multiple commands
// can be audited concurrently.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
	log  *slog.Logger
}

// Open appends to (creating if necessary) the audit log at path. log may
// be nil, in which case entries are written to the trail file only.
func Open(path string, log *slog.Logger) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &Logger{file: f, now: time.Now, log: log}, nil
}

// Log appends one audited command to the trail and mirrors it through the
// structured application logger at Info (status < 400) or Warn. A write
// failure is swallowed without a retry — audit logging must never block
// or fail the command it's recording.
func (l *Logger) Log(sourceIP, action string, status int, detail string) {
	entry := Entry{
		Timestamp: l.now().UTC(),
		SourceIP:  sourceIP,
		Action:    action,
		Status:    status,
		Detail:    detail,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	l.file.Write(data)
	l.mu.Unlock()

	if l.log == nil {
		return
	}
	if status >= 400 {
		l.log.Warn("audit", "source_ip", sourceIP, "action", action, "status", status, "detail", detail)
	} else {
		l.log.Info("audit", "source_ip", sourceIP, "action", action, "status", status, "detail", detail)
	}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}
