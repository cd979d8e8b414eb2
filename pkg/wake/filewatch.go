package wake

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileWatch signals when any of Paths is written, created or replaced. The
// parent directories are watched so atomic renames and re-created files are
// seen as well.
type FileWatch struct {
	Paths []string
}

// NewFileWatch returns a FileWatch over paths.
func NewFileWatch(paths ...string) *FileWatch {
	return &FileWatch{Paths: paths}
}

// Name returns "fsnotify".
func (w *FileWatch) Name() string { return "fsnotify" }

// Watch blocks until ctx is cancelled or the watcher fails.
func (w *FileWatch) Watch(ctx context.Context, notify func()) error {
	if len(w.Paths) == 0 {
		return fmt.Errorf("fsnotify: no paths to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]bool, len(w.Paths))
	dirs := make(map[string]bool)
	for _, p := range w.Paths {
		clean := filepath.Clean(p)
		wanted[clean] = true
		// sysfs attributes only emit events when watched directly.
		if err := watcher.Add(clean); err == nil {
			continue
		}
		dirs[filepath.Dir(clean)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("fsnotify: watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify: event channel closed")
			}
			if !wanted[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue // Ignore chmod
			}
			notify()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify: error channel closed")
			}
			return fmt.Errorf("fsnotify: %w", err)
		}
	}
}
