package connectivity

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// pathWatcher turns changes to network configuration files into probe
// triggers. Parent directories are watched so atomic file replacement is seen.
type pathWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	onEvent func()
	logger  *log.Logger
}

func newPathWatcher(paths []string, onEvent func(), logger *log.Logger) (*pathWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &pathWatcher{
		watcher: watcher,
		files:   make(map[string]bool),
		onEvent: onEvent,
		logger:  logger,
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		dir := filepath.Dir(abs)
		if _, err := os.Stat(dir); err != nil {
			logger.Printf("skipping watch path %s: %v", p, err)
			continue
		}
		w.files[abs] = true
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			logger.Printf("skipping watch path %s: %v", p, err)
			continue
		}
		dirs[dir] = true
	}

	if len(dirs) == 0 {
		watcher.Close()
		return nil, fmt.Errorf("no watchable paths in %v", paths)
	}
	return w, nil
}

func (w *pathWatcher) run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.files[filepath.Clean(event.Name)] {
				w.onEvent()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		}
	}
}
