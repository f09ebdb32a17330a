package filecontext

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTracker_ReadThenFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := New(discardLogger(), 0)
	tr.TrackRead(path, "hello")

	fresh := tr.CheckFreshness(path)
	if !fresh.Tracked || fresh.Stale {
		t.Errorf("got %+v, want tracked & fresh", fresh)
	}
}

func TestTracker_WriteAfterReadMarksStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	tr := New(discardLogger(), 0)
	tr.TrackRead(path, "hello")
	tr.TrackWrite(path, "modified")

	fresh := tr.CheckFreshness(path)
	if !fresh.Stale {
		t.Errorf("expected stale after write, got %+v", fresh)
	}
}

func TestTracker_DiskModificationAfterReadMarksStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("v1"), 0o644)

	tr := New(discardLogger(), 0)
	tr.TrackRead(path, "v1")

	// Ensure the on-disk mtime strictly advances past last_read.
	future := time.Now().Add(2 * time.Second)
	os.WriteFile(path, []byte("v2-external"), 0o644)
	os.Chtimes(path, future, future)

	fresh := tr.CheckFreshness(path)
	if !fresh.Stale {
		t.Errorf("expected stale after external disk modification, got %+v", fresh)
	}
}

func TestTracker_UntrackedPathReportsNotTracked(t *testing.T) {
	tr := New(discardLogger(), 0)
	fresh := tr.CheckFreshness("/never/seen.txt")
	if fresh.Tracked {
		t.Error("expected Tracked=false for never-seen path")
	}
}

func TestTracker_MarkFreshClearsStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	tr := New(discardLogger(), 0)
	tr.TrackRead(path, "hello")
	tr.TrackWrite(path, "changed")
	tr.MarkFresh(path)

	if stale := tr.StaleFiles(); len(stale) != 0 {
		t.Errorf("expected no stale files after MarkFresh, got %v", stale)
	}
}

func TestTracker_ModifiedFilesTracksWrites(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	os.WriteFile(pathA, []byte("a"), 0o644)
	os.WriteFile(pathB, []byte("b"), 0o644)

	tr := New(discardLogger(), 0)
	tr.TrackWrite(pathA, "a2")
	tr.TrackRead(pathB, "b")

	modified := tr.ModifiedFiles()
	if len(modified) != 1 {
		t.Fatalf("got %d modified files, want 1", len(modified))
	}
}

func TestTracker_EnforceLimitEvictsOldestRead(t *testing.T) {
	dir := t.TempDir()
	tr := New(discardLogger(), 2)

	paths := make([]string, 3)
	for i := range paths {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		os.WriteFile(p, []byte("x"), 0o644)
		paths[i] = p
		tr.TrackRead(p, "x")
		time.Sleep(time.Millisecond)
	}

	summary := tr.Summary()
	if summary.TrackedFiles != 2 {
		t.Fatalf("got %d tracked files, want 2 (max)", summary.TrackedFiles)
	}

	// The first-read (oldest) path should have been evicted.
	fresh := tr.CheckFreshness(paths[0])
	if fresh.Tracked {
		t.Error("expected oldest tracked path to be evicted")
	}
}

func TestTracker_SuggestRefreshOrdersByModificationCount(t *testing.T) {
	dir := t.TempDir()
	tr := New(discardLogger(), 0)

	pathLow := filepath.Join(dir, "low.txt")
	pathHigh := filepath.Join(dir, "high.txt")
	os.WriteFile(pathLow, []byte("x"), 0o644)
	os.WriteFile(pathHigh, []byte("x"), 0o644)

	tr.TrackRead(pathLow, "x")
	tr.TrackWrite(pathLow, "y")

	tr.TrackRead(pathHigh, "x")
	tr.TrackWrite(pathHigh, "y1")
	tr.TrackWrite(pathHigh, "y2")
	tr.TrackWrite(pathHigh, "y3")

	suggestions := tr.SuggestRefresh()
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(suggestions))
	}
	if suggestions[0] != pathHigh {
		t.Errorf("suggestions[0] = %q, want %q (most modified first)", suggestions[0], pathHigh)
	}
}
