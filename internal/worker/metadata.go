package worker

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// buildMetadata merges the provider's raw status payload with the
// local bookkeeping fields worker.py always overlays on top of it.
func buildMetadata(req Request, fullPrompt, providerTaskID string, statusData map[string]any, localStatus, errMsg string) map[string]any {
	meta := make(map[string]any, len(statusData)+6)
	for k, v := range statusData {
		meta[k] = v
	}

	if providerTaskID != "" {
		meta["task_id"] = providerTaskID
	}
	if localStatus != "" {
		meta["local_status"] = localStatus
	}
	if errMsg != "" {
		meta["error_msg"] = errMsg
	}

	meta["full_prompt"] = fullPrompt
	meta["local_task_id"] = req.TaskID
	meta["source_file"] = req.SourceFile
	meta["segment_index"] = req.SegmentIndex
	meta["version_index"] = req.VersionIndex

	return meta
}

// writeMetadata writes the JSON sidecar next to a task's video output.
// Failures are logged, not propagated — a missing metadata file never
// blocks the generation pipeline itself.
func writeMetadata(log *slog.Logger, path string, payload map[string]any) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Error("create metadata directory failed", "path", path, "error", err)
		return
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Error("marshal metadata failed", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Error("write metadata failed", "path", path, "error", err)
	}
}
