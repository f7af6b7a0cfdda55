package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pubky-canvas/indexer/errors"
	"github.com/pubky-canvas/indexer/logger"
)

// ReloadCallback is invoked with the freshly reloaded config whenever the
// watched file changes. Only watcher.* keys are expected to change
// meaningfully at runtime; identity and storage settings take effect only
// at process start.
type ReloadCallback func(Config)

// Watcher watches a config file for changes and re-runs LoadFromFile on any
// filesystem event for that file, debounced so a burst of events (editors
// often save via rename+create) collapses into a single reload.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu        sync.Mutex
	callbacks []ReloadCallback

	stop chan struct{}
	done chan struct{}
}

// NewWatcher starts watching path's parent directory (fsnotify watches
// directories more reliably than individual files across editors/tools that
// replace files via rename).
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch config directory %s", dir)
	}

	w := &Watcher{
		path:     path,
		watcher:  fw,
		debounce: 300 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// OnReload registers a callback invoked after each successful reload.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

func (w *Watcher) run() {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("config watcher error", logger.FieldError, err)

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		logger.Warnw("config reload failed, keeping previous configuration", logger.FieldError, err)
		return
	}

	w.mu.Lock()
	callbacks := append([]ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return w.watcher.Close()
}
