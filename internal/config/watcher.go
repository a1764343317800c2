package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

// ChangeEvent describes a configuration reload.
type ChangeEvent struct {
	File      string
	Action    string // create, modify, manual_reload
	Config    *Config
	Timestamp time.Time
}

// ChangeHandler is called after a successful reload.
type ChangeHandler func(event ChangeEvent) error

// Watcher reloads the config file when it changes on disk. Invalid files are
// logged and ignored; the last good configuration stays current.
type Watcher struct {
	path     string
	current  atomic.Pointer[Config]
	handlers []ChangeHandler
	watcher  *fsnotify.Watcher
	debounce time.Duration
	started  bool
	stopCh   chan struct{}
	logger   *zap.Logger
	mu       sync.RWMutex
	reloadMu sync.Mutex
}

// NewWatcher creates a watcher for path starting from initial.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		debounce: 50 * time.Millisecond,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	w.current.Store(initial)
	return w, nil
}

// Current returns the last successfully loaded configuration
func (w *Watcher) Current() *Config { return w.current.Load() }

// RegisterHandler adds a change handler. Handlers run in registration order
// on the watcher goroutine.
func (w *Watcher) RegisterHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start watches the directory holding the config file so editors that
// replace the file by rename are seen too.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	go w.watchLoop(ctx)

	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
	return nil
}

// Stop stops watching
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}
	close(w.stopCh)
	w.started = false
	return w.watcher.Close()
}

// Reload loads the file now and notifies handlers on success.
func (w *Watcher) Reload(action string) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		return err
	}
	w.current.Store(cfg)
	metrics.ConfigReloads.WithLabelValues("ok").Inc()

	w.mu.RLock()
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	event := ChangeEvent{File: w.path, Action: action, Config: cfg, Timestamp: time.Now()}
	for _, h := range handlers {
		if err := h(event); err != nil {
			w.logger.Error("Configuration handler error",
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}
	w.logger.Info("Configuration reloaded", zap.String("path", w.path), zap.String("action", action))
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleWatchEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleWatchEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var action string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		action = "create"
	case event.Op&fsnotify.Write == fsnotify.Write:
		action = "modify"
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// keep serving the last good config until the file comes back
		w.logger.Warn("Configuration file removed", zap.String("path", w.path))
		return
	default:
		return
	}

	// Small delay to absorb rapid successive writes
	time.Sleep(w.debounce)
	if err := w.Reload(action); err != nil {
		w.logger.Error("Failed to reload configuration",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
