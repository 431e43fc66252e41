// This file implements hot reloading of the indexer settings file, so a
// model or endpoint change in settings.yaml takes effect without a
// backend restart.
package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SettingsWatcher watches the settings.yaml file and reloads the
// SettingsSource when it changes.
type SettingsWatcher struct {
	source    *SettingsSource
	callbacks []func(*Settings)
	mu        sync.RWMutex
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewSettingsWatcher starts watching the directory containing the settings
// file. Watching the directory instead of the file survives editors and
// pipelines that replace the file on write.
func NewSettingsWatcher(source *SettingsSource, logger *zap.Logger) (*SettingsWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(source.Path())
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}

	w := &SettingsWatcher{
		source:  source,
		logger:  logger,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
	}
	go w.watchLoop()

	logger.Info("Settings hot reloading enabled",
		zap.String("path", source.Path()),
	)
	return w, nil
}

// OnChange registers a callback to be called after a successful reload.
func (w *SettingsWatcher) OnChange(callback func(*Settings)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Stop stops the watcher.
func (w *SettingsWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

// watchLoop monitors for file changes and triggers debounced reloads.
func (w *SettingsWatcher) watchLoop() {
	// Debounce timer to avoid multiple rapid reloads
	var debounceTimer *time.Timer
	const debounceDelay = 500 * time.Millisecond

	target := filepath.Clean(w.source.Path())

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			w.logger.Info("Settings file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Settings watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping settings watcher")
			return
		}
	}
}

// reload re-reads the settings and notifies callbacks.
func (w *SettingsWatcher) reload() {
	if err := w.source.Reload(); err != nil {
		w.logger.Error("Settings reload failed, keeping previous settings",
			zap.Error(err),
		)
		return
	}

	current := w.source.Current()

	w.mu.RLock()
	callbacks := make([]func(*Settings), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for i, callback := range callbacks {
		// Run callbacks in goroutines to avoid blocking the watch loop
		go func(idx int, cb func(*Settings)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Settings callback panicked",
						zap.Int("callback_index", idx),
						zap.Any("panic", r),
					)
				}
			}()
			cb(current)
		}(i, callback)
	}
}
