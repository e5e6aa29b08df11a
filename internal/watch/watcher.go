// Package watch re-runs work when files under a directory change.
//
// Changes are debounced: a burst of writes (a site generator rewriting its
// output tree) produces a single callback with every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is the debounce delay used when none is configured.
const DefaultDelay = 300 * time.Millisecond

// Filter reports whether a changed path is of interest.
type Filter func(path string) bool

// Handler is called with the sorted, de-duplicated paths changed during one
// debounce window. A returned error is logged and watching continues.
type Handler func(ctx context.Context, paths []string) error

// Watcher watches a directory tree with debouncing.
type Watcher struct {
	fsw     *fsnotify.Watcher
	delay   time.Duration
	filters []Filter
	logger  *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(delay time.Duration) Option {
	return func(w *Watcher) {
		if delay > 0 {
			w.delay = delay
		}
	}
}

// WithFilter adds a filter; a path must pass every filter.
func WithFilter(filter Filter) Option {
	return func(w *Watcher) {
		w.filters = append(w.filters, filter)
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a Watcher. Call AddRecursive to choose what to watch.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		delay:  DefaultDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// AddRecursive watches root and every directory below it. Hidden
// directories are skipped.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && IsHidden(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers debounced changes to handler until ctx is done.
// The handler runs on the watch goroutine, so changes made while it runs are
// delivered in the next batch.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.accept(event) {
				continue
			}
			w.watchNewDir(event)
			pending[event.Name] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("file watcher overflow, changes may be missed")
				continue
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			clear(pending)
			slices.Sort(paths)

			if err := handler(ctx, paths); err != nil {
				w.logger.Error("watch handler failed", "error", err)
			}
		}
	}
}

func (w *Watcher) accept(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	for _, filter := range w.filters {
		if !filter(event.Name) {
			return false
		}
	}
	return true
}

// watchNewDir starts watching directories created after AddRecursive.
func (w *Watcher) watchNewDir(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.AddRecursive(event.Name); err != nil {
		w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
	}
}

// IsHidden reports whether the last element of path starts with a dot.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// NoHiddenFilter rejects paths whose last element is hidden, such as editor
// swap files.
func NoHiddenFilter(path string) bool {
	return !IsHidden(path)
}
