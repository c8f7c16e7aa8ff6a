package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// ChangeFunc receives the reloaded config and the keys that changed.
type ChangeFunc func(cfg Config, changed []string)

// Watch reloads the config at path whenever the file is written and calls fn
// with the keys that changed relative to current. It blocks until ctx is
// cancelled. A file that fails to parse is logged and ignored.
func Watch(ctx context.Context, path string, current Config, logger *slog.Logger, fn ChangeFunc) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(resolved)); err != nil {
		logger.Warn("failed to watch config directory", "path", resolved, "error", err)
		<-ctx.Done()
		return nil
	}

	var mu sync.Mutex
	last := current
	reload := func() {
		mu.Lock()
		defer mu.Unlock()

		cfg, err := Load(resolved)
		if err != nil {
			logger.Warn("config reload failed", "path", resolved, "error", err)
			return
		}
		changed := Diff(last, cfg)
		if len(changed) == 0 {
			return
		}
		last = cfg
		logger.Info("config changed", "keys", changed)
		fn(cfg, changed)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != resolved {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}
