// Package watcher watches directory trees for file changes and delivers
// debounced, glob-filtered batches of changed paths. It backs the watch
// subcommand, which re-renders files as they are saved.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/codechat-live/codechat-server/internal/logging"
)

// Options configures a Watcher.
type Options struct {
	// Paths are the directories to watch, recursively.
	Paths []string
	// Patterns select which changed files are delivered; empty matches all.
	Patterns []string
	// IgnorePatterns drop files even when a pattern matches.
	IgnorePatterns []string
	// Debounce groups rapid changes into one delivery. Zero means 300ms.
	Debounce time.Duration
	Log      logging.Logger
}

// Handler receives each debounced batch of changed file paths. Paths are
// absolute and sorted; every path appears at most once per batch.
type Handler func(paths []string)

// Watcher turns raw filesystem notifications into debounced change batches.
type Watcher struct {
	fs      *fsnotify.Watcher
	opts    Options
	handler Handler
	log     logging.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New builds a Watcher over opts.Paths and their subdirectories. The
// handler runs on the debounce timer's goroutine.
func New(opts Options, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}

	w := &Watcher{
		fs:      fsw,
		opts:    opts,
		handler: handler,
		log:     opts.Log.WithComponent("watcher"),
		pending: make(map[string]struct{}),
	}
	for _, path := range opts.Paths {
		if err := w.addRecursive(path); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addRecursive watches root and every directory below it. Roots are made
// absolute so that event paths, and therefore the paths handed to the
// handler, are absolute too.
func (w *Watcher) addRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, err, "watch error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	// New directories must be watched before anything inside them changes.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Warn(ctx, err, "cannot watch new directory", "path", ev.Name)
			}
			return
		}
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	if !w.Matches(ev.Name) {
		return
	}
	w.enqueue(ev.Name)
}

// Matches reports whether path passes the pattern and ignore filters.
func (w *Watcher) Matches(path string) bool {
	if matchAny(w.opts.IgnorePatterns, path) {
		return false
	}
	if len(w.opts.Patterns) == 0 {
		return true
	}
	return matchAny(w.opts.Patterns, path)
}

// matchAny applies a doublestar pattern list. Patterns containing a slash
// match the whole slash-normalized path, the rest match the base name only.
func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		target := filepath.Base(path)
		if strings.ContainsRune(pattern, '/') {
			target = filepath.ToSlash(path)
		}
		if ok, err := doublestar.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.flush)
}

// flush hands the pending set to the handler and clears it.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	clear(w.pending)
	w.mu.Unlock()

	sort.Strings(paths)
	w.handler(paths)
}
