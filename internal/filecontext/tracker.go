// Package filecontext implements FileContextTracker, the client-side
// staleness detector grounded on the Python predecessor's
// context.file_context_tracker.FileContextTracker: it remembers when each
// file was last read and last modified so the approval pipeline can flag a
// stale-context condition before acting on it.
package filecontext

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultMaxTrackedFiles bounds the tracker's memory; oldest-by-last-read
// entries are evicted once this cap is exceeded.
const DefaultMaxTrackedFiles = 100

// hashPrefixLen mirrors the predecessor's sha256 hexdigest truncated to 16
// hex characters (64 bits), enough to detect content drift without storing
// full file contents.
const hashPrefixLen = 16

// fileContext holds tracking state for one path.
type fileContext struct {
	path               string
	lastRead           time.Time
	lastModifiedSeen   time.Time
	lastContentHash    string
	modificationCount  int
	isStale            bool
}

// Freshness reports the result of a staleness check.
type Freshness struct {
	Tracked           bool      `json:"tracked"`
	Stale             bool      `json:"stale"`
	Reason            string    `json:"reason"`
	LastRead          time.Time `json:"last_read,omitempty"`
	DiskModified      time.Time `json:"disk_modified,omitempty"`
	ModificationCount int       `json:"modification_count,omitempty"`
}

// Summary reports aggregate tracker state, grounded on
// FileContextTracker.get_context_summary.
type Summary struct {
	TrackedFiles    int           `json:"tracked_files"`
	ModifiedFiles   int           `json:"modified_files"`
	StaleFiles      int           `json:"stale_files"`
	MaxTracked      int           `json:"max_tracked"`
	SessionDuration time.Duration `json:"session_duration"`
}

// Tracker tracks per-path read/write history for one session.
type Tracker struct {
	log *slog.Logger

	mu            sync.Mutex
	maxTracked    int
	tracked       map[string]*fileContext
	modifiedPaths map[string]struct{}
	sessionStart  time.Time

	watcher *fsnotify.Watcher
}

// New creates a Tracker bounded to maxTracked entries. A non-positive value
// uses DefaultMaxTrackedFiles.
func New(log *slog.Logger, maxTracked int) *Tracker {
	if maxTracked <= 0 {
		maxTracked = DefaultMaxTrackedFiles
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		log:           log,
		maxTracked:    maxTracked,
		tracked:       make(map[string]*fileContext),
		modifiedPaths: make(map[string]struct{}),
		sessionStart:  time.Now(),
	}
}

// StartWatching enables proactive out-of-band change detection via
// fsnotify: once started, a write or rename to a tracked file's directory
// marks that file stale immediately rather than waiting for the next
// CheckFreshness poll. Optional — a Tracker with no watcher falls back to
// the on-demand os.Stat comparison CheckFreshness already does. Mirrors the
// teacher's own fsnotify-based config hot-reload watch loop.
func (t *Tracker) StartWatching() error {
	t.mu.Lock()
	if t.watcher != nil {
		t.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.watcher = w
	t.mu.Unlock()

	go t.watchLoop(w)
	return nil
}

func (t *Tracker) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			t.markStaleFromDisk(event.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			t.log.Warn("filecontext: watch error", "error", err)
		}
	}
}

func (t *Tracker) markStaleFromDisk(path string) {
	abs := absPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx, ok := t.tracked[abs]; ok {
		ctx.isStale = true
		t.log.Debug("filecontext: file changed on disk", "path", abs)
	}
}

// watchPath best-effort registers abs's parent directory with the active
// watcher. Directory-level watching, not per-file, matches fsnotify's
// platform-portable recommendation; events for unrelated siblings are
// filtered out by markStaleFromDisk's tracked-path lookup.
func (t *Tracker) watchPath(abs string) {
	if t.watcher == nil {
		return
	}
	_ = t.watcher.Add(filepath.Dir(abs))
}

// Close stops the watcher, if one was started. Safe to call on a Tracker
// that never called StartWatching.
func (t *Tracker) Close() error {
	t.mu.Lock()
	w := t.watcher
	t.watcher = nil
	t.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func hashContent(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

func diskModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// TrackRead records that a file was read, optionally hashing its content.
func (t *Tracker) TrackRead(path, content string) {
	abs := absPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()

	mtime, _ := diskModTime(abs)
	hash := hashContent(content)

	ctx, ok := t.tracked[abs]
	if ok {
		ctx.lastRead = time.Now()
		ctx.lastModifiedSeen = mtime
		ctx.lastContentHash = hash
		ctx.isStale = false
	} else {
		t.tracked[abs] = &fileContext{
			path:             abs,
			lastRead:         time.Now(),
			lastModifiedSeen: mtime,
			lastContentHash:  hash,
		}
		t.enforceLimit()
	}
	t.watchPath(abs)

	t.log.Debug("tracked file read", "path", abs)
}

// TrackWrite records that a file was written, marking it stale relative to
// any prior read.
func (t *Tracker) TrackWrite(path, content string) {
	abs := absPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := hashContent(content)

	ctx, ok := t.tracked[abs]
	if ok {
		ctx.lastModifiedSeen = time.Now()
		ctx.lastContentHash = hash
		ctx.modificationCount++
		ctx.isStale = true
	} else {
		t.tracked[abs] = &fileContext{
			path:              abs,
			lastModifiedSeen:  time.Now(),
			lastContentHash:   hash,
			modificationCount: 1,
		}
		t.enforceLimit()
	}

	t.modifiedPaths[abs] = struct{}{}
	t.log.Debug("tracked file write", "path", abs)
}

// CheckFreshness reports whether path's tracked context is stale, either
// because a tool wrote it after it was read or because the file changed on
// disk out-of-band since the last read.
func (t *Tracker) CheckFreshness(path string) Freshness {
	abs := absPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, ok := t.tracked[abs]
	if !ok {
		return Freshness{Tracked: false, Stale: false, Reason: "file not tracked"}
	}

	if diskMtime, exists := diskModTime(abs); exists && !ctx.lastRead.IsZero() {
		if diskMtime.After(ctx.lastRead) {
			ctx.isStale = true
			return Freshness{
				Tracked:      true,
				Stale:        true,
				Reason:       "file modified on disk since last read",
				LastRead:     ctx.lastRead,
				DiskModified: diskMtime,
			}
		}
	}

	if ctx.isStale {
		return Freshness{
			Tracked:           true,
			Stale:             true,
			Reason:            "file modified by tool after being read",
			ModificationCount: ctx.modificationCount,
		}
	}

	return Freshness{
		Tracked:           true,
		Stale:             false,
		Reason:            "file context is fresh",
		LastRead:          ctx.lastRead,
		ModificationCount: ctx.modificationCount,
	}
}

// StaleFiles returns every tracked path currently considered stale,
// re-checking disk modification time for paths not already flagged.
func (t *Tracker) StaleFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []string
	for path, ctx := range t.tracked {
		if ctx.isStale {
			stale = append(stale, path)
			continue
		}
		diskMtime, exists := diskModTime(path)
		if !exists || ctx.lastRead.IsZero() {
			continue
		}
		if diskMtime.After(ctx.lastRead) {
			ctx.isStale = true
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)
	return stale
}

// ModifiedFiles returns every path written during this session.
func (t *Tracker) ModifiedFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.modifiedPaths))
	for p := range t.modifiedPaths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MarkFresh clears the stale flag for path.
func (t *Tracker) MarkFresh(path string) {
	abs := absPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx, ok := t.tracked[abs]; ok {
		ctx.isStale = false
	}
}

// ClearStale clears the stale flag for every tracked path.
func (t *Tracker) ClearStale() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ctx := range t.tracked {
		ctx.isStale = false
	}
}

// enforceLimit evicts the oldest-by-last-read entries once the tracker
// exceeds maxTracked. Callers must hold t.mu.
func (t *Tracker) enforceLimit() {
	if len(t.tracked) <= t.maxTracked {
		return
	}

	type entry struct {
		path string
		key  time.Time
	}
	entries := make([]entry, 0, len(t.tracked))
	for path, ctx := range t.tracked {
		key := ctx.lastRead
		if key.IsZero() {
			key = t.sessionStart
		}
		entries = append(entries, entry{path: path, key: key})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key.Before(entries[j].key) })

	toRemove := len(t.tracked) - t.maxTracked
	for i := 0; i < toRemove; i++ {
		delete(t.tracked, entries[i].path)
		delete(t.modifiedPaths, entries[i].path)
	}
	t.log.Debug("evicted old tracked files", "count", toRemove)
}

// Summary returns aggregate tracker statistics.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	staleCount := 0
	for _, ctx := range t.tracked {
		if ctx.isStale {
			staleCount++
		}
	}

	return Summary{
		TrackedFiles:    len(t.tracked),
		ModifiedFiles:   len(t.modifiedPaths),
		StaleFiles:      staleCount,
		MaxTracked:      t.maxTracked,
		SessionDuration: time.Since(t.sessionStart),
	}
}

// SuggestRefresh returns up to 5 stale, previously-read paths, most-modified
// first, grounded on FileContextTracker.suggest_refresh.
func (t *Tracker) SuggestRefresh() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	type candidate struct {
		path  string
		count int
	}
	var candidates []candidate
	for path, ctx := range t.tracked {
		if ctx.isStale && !ctx.lastRead.IsZero() {
			candidates = append(candidates, candidate{path: path, count: ctx.modificationCount})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })

	limit := 5
	if len(candidates) < limit {
		limit = len(candidates)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].path
	}
	return out
}
