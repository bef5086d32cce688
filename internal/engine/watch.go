package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a Watcher waits for further events before
// reacting to a change.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes to a pipeline definition and its source files.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher starts watching the pipeline file and every source path of p.
// Parent directories are watched so files replaced by rename are still seen.
func NewWatcher(p *Pipeline, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	files := WatchedFiles(p)
	if len(files) == 0 {
		return nil, fmt.Errorf("pipeline %s has no files to watch", p.Name)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{fsw: fsw, files: map[string]bool{}, debounce: DefaultDebounce, logger: logger}
	dirs := map[string]bool{}
	for _, f := range files {
		w.files[f] = true
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// WatchedFiles returns the absolute, sorted paths a pipeline depends on:
// its definition file and its sources.
func WatchedFiles(p *Pipeline) []string {
	seen := map[string]bool{}
	var files []string
	add := func(path string) {
		if path == "" {
			return
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	add(p.File)
	for _, src := range p.Sources {
		add(src.Path)
	}
	sort.Strings(files)
	return files
}

// Run calls onChange after each burst of changes to a watched file until
// ctx is cancelled. Errors from onChange are logged, not returned.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	var pending <-chan time.Time
	var changed string

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			changed = event.Name
			pending = time.After(w.debounce)

		case <-pending:
			pending = nil
			w.logger.Info("pipeline input changed, re-running", "file", changed)
			if err := onChange(ctx); err != nil {
				w.logger.Error("re-run failed", "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
