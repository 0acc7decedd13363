// Package watch re-runs a callback when a schema file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last write before the callback runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches one file.
type Watcher struct {
	file     string
	callback func(ctx context.Context) error
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger callback and watch errors are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New watches the directory holding file, which keeps editors that replace the file on save
// from dropping the watch.
func New(file string, callback func(ctx context.Context) error, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	w := &Watcher{
		file:     absPath,
		callback: callback,
		watcher:  fw,
		debounce: DefaultDebounce,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run invokes the callback once, then after every debounced change, until ctx is done.
// Callback errors are logged and do not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.callback(ctx); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if path, err := filepath.Abs(event.Name); err != nil || path != w.file {
				continue
			}
			timer.Reset(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			w.log.Debug("schema file changed", zap.String("file", w.file))
			if err := w.callback(ctx); err != nil {
				w.log.Error("watch callback failed", zap.Error(err))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}
