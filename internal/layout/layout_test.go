package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSegmentDirCentralized(t *testing.T) {
	root := t.TempDir()
	dir, err := ResolveSegmentDir(Request{
		Mode:         Centralized,
		OutputRoot:   root,
		StoryboardID: "sb-1",
		SegmentIndex: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "sb-1", "Segment_3")
	if dir != want {
		t.Errorf("got %s, want %s", dir, want)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory to be created: %v", err)
	}
}

func TestResolveSegmentDirInPlace(t *testing.T) {
	root := t.TempDir()
	dir, err := ResolveSegmentDir(Request{
		Mode:                InPlace,
		StoryboardSourceDir: root,
		StoryboardStem:      "myboard",
		SegmentIndex:        1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "myboard_assets", "Segment_1")
	if dir != want {
		t.Errorf("got %s, want %s", dir, want)
	}
}

func TestResolveSegmentDirCustomRequiresPath(t *testing.T) {
	_, err := ResolveSegmentDir(Request{Mode: Custom, StoryboardID: "sb-1", SegmentIndex: 1})
	if err == nil {
		t.Fatal("expected error when custom output_path is missing")
	}
}

func TestIsNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.mp4")
	if IsNonEmptyFile(missing) {
		t.Error("expected missing file to be reported as not present")
	}

	empty := filepath.Join(dir, "empty.mp4")
	os.WriteFile(empty, nil, 0644)
	if IsNonEmptyFile(empty) {
		t.Error("expected empty file to be reported as not non-empty")
	}

	nonEmpty := filepath.Join(dir, "full.mp4")
	os.WriteFile(nonEmpty, []byte("data"), 0644)
	if !IsNonEmptyFile(nonEmpty) {
		t.Error("expected non-empty file to be reported as present")
	}
}

func TestEnsureFreeSpaceRejectsImpossibleRequirement(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureFreeSpace(dir, 1<<62); err == nil {
		t.Fatal("expected an error when requiring more space than exists")
	}
}

func TestEnsureFreeSpaceAllowsSmallRequirement(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureFreeSpace(dir, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
