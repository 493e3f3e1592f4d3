// Package watcher restarts the simulation when its topology file changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/agentic-mesh/pkg/logging"
)

// Debounce timings for topology reloads
const (
	DefaultQuietPeriod = 250 * time.Millisecond
	DefaultMaxWait     = 2 * time.Second
)

// ChangeEvent is a batch of changes keyed by absolute path.
// Latest holds the most recent change type seen for each file.
type ChangeEvent struct {
	Latest    map[string]ChangeType
	Timestamp time.Time
}

// FileWatcher watches individual files through their parent directories,
// which survives editors that replace the file on save
type FileWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	events  chan ChangeEvent
}

// NewFileWatcher creates a watcher for the given files
func NewFileWatcher(paths ...string) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: w,
		files:   make(map[string]bool),
		events:  make(chan ChangeEvent, 100),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		fw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return fw, nil
}

// Start begins forwarding events for the watched files
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.processEvents(ctx)
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !fw.files[abs] {
				continue
			}
			t, ok := Classify(event.Op)
			if !ok {
				continue
			}
			logging.Trace("file event", "path", abs, "op", event.Op.String())

			select {
			case fw.events <- ChangeEvent{Latest: map[string]ChangeType{abs: t}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// WatchTopology calls restart after each debounced change to path.
// It blocks until ctx is cancelled.
func WatchTopology(ctx context.Context, path string, restart func()) error {
	fw, err := NewFileWatcher(path)
	if err != nil {
		return err
	}
	fw.Start(ctx)

	debouncer := NewDebouncer(fw.Events(), DefaultQuietPeriod, DefaultMaxWait)
	debouncer.Start(ctx)

	logging.Info("watching topology file", "path", path)

	for batch := range debouncer.Output() {
		if !NeedsRestart(batch) {
			logging.Warn("topology file removed, keeping current simulation", "path", path)
			continue
		}
		logging.Info("topology file changed, restarting simulation", "path", path)
		restart()
	}
	return nil
}
