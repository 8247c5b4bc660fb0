package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the stable window required before a reload fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the catalog directory and emits one reload message per
// stable window of filesystem changes. Editors produce bursts of writes;
// the pipeline only cares that the catalog changed at all.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	reloads chan struct{}
	stop    chan struct{}
}

// NewWatcher creates a watcher for dir. A debounce of 0 uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		reloads:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}, nil
}

// Reloads is the channel on which debounced reload messages arrive.
func (w *Watcher) Reloads() <-chan struct{} {
	return w.reloads
}

// Start runs the watch loop until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stop)
	_ = w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Restart the stable window on every relevant event.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.reloads <- struct{}{}:
			default:
				// A reload is already pending; collapsing is fine.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}

func isDefinitionFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
