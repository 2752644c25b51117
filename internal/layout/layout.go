// Package layout resolves the on-disk output directory for a (storyboard,
// segment) pair under the three layout modes in spec §6, and guards
// downloads against running out of disk space before they start.
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// Mode is the output_layout argument to submit_run.
type Mode string

const (
	Centralized Mode = "centralized"
	InPlace     Mode = "in_place"
	Custom      Mode = "custom"
)

// Request carries everything needed to resolve a segment's output
// directory, independent of any particular storyboard/segment struct so
// this package has no dependency on the store.
type Request struct {
	Mode                Mode
	OutputRoot          string // used by Centralized
	CustomPath          string // used by Custom
	StoryboardID        string
	StoryboardSourceDir string // parent dir of the storyboard source file, used by InPlace
	StoryboardStem      string // storyboard source filename without extension, used by InPlace
	SegmentIndex        int
}

// ResolveSegmentDir returns the directory a task's video/metadata files
// belong in, creating it if necessary.
func ResolveSegmentDir(req Request) (string, error) {
	var base string
	switch req.Mode {
	case Custom:
		if req.CustomPath == "" {
			return "", fmt.Errorf("validation_error: output_path is required for custom output layout")
		}
		base = filepath.Join(req.CustomPath, req.StoryboardID)
	case InPlace:
		base = filepath.Join(req.StoryboardSourceDir, req.StoryboardStem+"_assets")
	default: // Centralized
		base = filepath.Join(req.OutputRoot, req.StoryboardID)
	}

	dir := filepath.Join(base, fmt.Sprintf("Segment_%d", req.SegmentIndex))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("layout: create segment dir: %w", err)
	}
	return dir, nil
}

// EnsureFreeSpace refuses to start a download that cannot possibly finish,
// checked against the volume holding dir plus a fixed safety buffer.
func EnsureFreeSpace(dir string, requiredBytes int64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("layout: check disk space: %w", err)
	}
	const buffer = 100 * 1024 * 1024
	if int64(usage.Free) < requiredBytes+buffer {
		return fmt.Errorf("disk full: required %d bytes, available %d bytes", requiredBytes, usage.Free)
	}
	return nil
}

// IsNonEmptyFile reports whether path exists and has non-zero size — the
// pre-flight skip check in spec §4.6 step 1.
func IsNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}
