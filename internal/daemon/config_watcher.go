package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wedge/internal/logging"
)

const reloadDebounce = 250 * time.Millisecond

// configWatcher calls reload after the configuration file changes. The parent
// directory is watched so editors that replace the file are still seen.
type configWatcher struct {
	path   string
	reload func()
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
}

func newConfigWatcher(path string, reload func(), logger *slog.Logger) *configWatcher {
	return &configWatcher{
		path:   filepath.Clean(path),
		reload: reload,
		logger: logging.NewComponentLogger(logger, "config-watcher"),
	}
}

func (w *configWatcher) start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = watcher
	w.done = make(chan struct{})
	go w.loop(ctx, watcher, w.done)

	w.logger.Info("watching configuration for changes",
		logging.String(logging.FieldEventType, "config_watch_started"),
		logging.String("path", w.path),
	)
	return nil
}

func (w *configWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn(w.logger, "config watcher error", logging.Problem{
				Event:  "config_watch_error",
				Impact: "configuration changes may be missed",
				Hint:   "restart the daemon to apply configuration changes",
			}, logging.Error(err))
		}
	}
}

// schedule coalesces the burst of events one save produces.
func (w *configWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *configWatcher) stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	watcher, done := w.watcher, w.done
	w.watcher = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if watcher == nil {
		return
	}
	_ = watcher.Close()
	<-done
}
