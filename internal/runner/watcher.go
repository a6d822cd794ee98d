package runner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/cachemark/internal/types"
)

// Watch re-analyzes files as they change until the context is cancelled.
// Events are debounced so editors that write in bursts trigger one pass; the
// content hash gate in processFile swallows touch-without-change events.
func (r *Runner) Watch(ctx context.Context, onResult func(*types.FileResult)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := r.watchTree(watcher, r.root); err != nil {
		return err
	}

	debounce := time.Duration(r.cfg.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if isDir(event.Name) {
				// new directories need their own watches
				_ = r.watchTree(watcher, event.Name)
				continue
			}
			rel, relErr := filepath.Rel(r.root, event.Name)
			if relErr != nil || !r.matches(rel) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(debounce)

		case <-timer.C:
			for path := range pending {
				delete(pending, path)
				result := r.processFile(path)
				if result.Skipped {
					continue
				}
				onResult(result)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return watchErr
		}
	}
}

// watchTree registers root and every directory below it.
func (r *Runner) watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		switch d.Name() {
		case ".git", "vendor", "node_modules":
			if path != root {
				return filepath.SkipDir
			}
		}
		return watcher.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
