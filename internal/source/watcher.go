package source

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to settle.
const DefaultDebounce = 750 * time.Millisecond

// Change is a debounced batch of file changes below the watched root.
type Change struct {
	Updated []string // Created or modified files
	Removed []string // Deleted or renamed-away files
}

// Watcher reports changes to knowledge documents below a directory.
// fsnotify is not recursive, so every subdirectory is added individually.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher starts watching root and its non-hidden subdirectories.
func NewWatcher(root string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{root: root, fsw: fsw, debounce: debounce}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run delivers debounced changes to onChange until ctx is done.
// onChange runs on the watcher goroutine; events arriving meanwhile are
// collected into the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context, Change)) error {
	updated := map[string]bool{}
	removed := map[string]bool{}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.record(event, updated, removed) {
				timer.Reset(w.debounce)
				fire = timer.C
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "component", "source", "error", err)

		case <-fire:
			fire = nil
			change := Change{Updated: sortedKeys(updated), Removed: sortedKeys(removed)}
			clear(updated)
			clear(removed)
			if len(change.Updated) > 0 || len(change.Removed) > 0 {
				onChange(ctx, change)
			}
		}
	}
}

// record folds one event into the pending sets and reports whether it mattered.
func (w *Watcher) record(event fsnotify.Event, updated, removed map[string]bool) bool {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(path), ".") {
				if err := w.addTree(path); err != nil {
					slog.Warn("cannot watch new directory", "component", "source", "path", path, "error", err)
				}
			}
			return false
		}
	}

	if !IsSupported(path) {
		return false
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(updated, path)
		removed[path] = true
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		delete(removed, path)
		updated[path] = true
	default:
		return false
	}
	return true
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
