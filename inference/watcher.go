package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the registry when its artifact file changes. The parent
// directory is watched so atomic replace-by-rename is seen as well as in-place
// writes.
type Watcher struct {
	registry *Registry
	debounce time.Duration
	logger   *zap.Logger
	started  chan struct{}

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)
}

func NewWatcher(registry *Registry, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		registry: registry,
		debounce: debounce,
		logger:   logger,
		started:  make(chan struct{}),
	}
}

// Started is closed once the watch is established.
func (w *Watcher) Started() <-chan struct{} {
	return w.started
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create model watcher: %w", err)
	}
	defer fw.Close()

	target, err := filepath.Abs(w.registry.Path())
	if err != nil {
		return fmt.Errorf("resolve model path: %w", err)
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	close(w.started)
	w.logger.Info("watching model artifact", zap.String("path", target), zap.Duration("debounce", w.debounce))

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	err := w.registry.Load()
	if err != nil {
		w.logger.Error("model reload failed, keeping previous artifact", zap.Error(err))
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
