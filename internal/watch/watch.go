// Package watch reports writes to SQLite store files made by other
// processes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// walSuffixes are the SQLite side files whose writes also signal a change.
var walSuffixes = []string{"", "-wal", "-shm", "-journal"}

// Watcher maps file system events on store files to callbacks.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]func() // absolute file path -> callback
	dirs    map[string]bool
}

// New creates a Watcher. Close releases its resources.
func New(logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:      fs,
		logger:  logger,
		targets: make(map[string]func()),
		dirs:    make(map[string]bool),
	}, nil
}

// Add calls onChange whenever the database at dbPath or one of its journal
// files is written, created, renamed or removed. The containing directory
// is watched so that journal files created later are seen.
func (w *Watcher) Add(dbPath string, onChange func()) error {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dbPath, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	for _, suffix := range walSuffixes {
		w.targets[abs+suffix] = onChange
	}
	return nil
}

// Run dispatches events until ctx is cancelled or the watcher is closed.
// Callbacks run on the Run goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if fn := w.lookup(ev.Name); fn != nil {
				w.logger.Debug("store file changed", "path", ev.Name, "op", ev.Op.String())
				fn()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) lookup(path string) func() {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.targets[abs]
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
