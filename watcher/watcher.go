// Package watcher turns filesystem change notifications under a root into
// scan requests executed by a bounded worker pool.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"sentinel/config"
	"sentinel/logger"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

var ErrRunning = errors.New("watcher is already running")

type State int32

const (
	Stopped State = iota
	Watching
)

func (s State) String() string {
	if s == Watching {
		return "watching"
	}
	return "stopped"
}

// Handler scans one path. It runs on a worker goroutine; its context is not
// canceled when the watcher stops so queued paths can drain.
type Handler func(ctx context.Context, path string)

// PathFilter decides which paths are never dispatched or watched.
type PathFilter interface {
	Excluded(path string) bool
	SkipDir(path string) bool
}

type Options struct {
	Concurrency  int
	QueueSize    int
	Debounce     time.Duration
	MaxPerSecond int
	Filter       PathFilter
}

// OptionsFromConfig maps the dispatch settings of cfg.
func OptionsFromConfig(cfg *config.Config, filter PathFilter) Options {
	return Options{
		Concurrency:  cfg.ConcurrencyLevel,
		QueueSize:    cfg.QueueSize,
		Debounce:     cfg.Debounce,
		MaxPerSecond: cfg.MaxScansPerSecond,
		Filter:       filter,
	}
}

type Watcher struct {
	root    string
	handler Handler
	opts    Options
	limiter *rate.Limiter

	state      atomic.Int32
	ready      chan struct{}
	readyOnce  sync.Once
	dispatched atomic.Int64
	queue      chan string
}

func New(root string, handler Handler, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	if handler == nil {
		return nil, errors.New("watcher handler is nil")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Concurrency * 4
	}
	w := &Watcher{
		root:    root,
		handler: handler,
		opts:    opts,
		ready:   make(chan struct{}),
	}
	if opts.MaxPerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(opts.MaxPerSecond), opts.MaxPerSecond)
	}
	return w, nil
}

func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Ready is closed once the initial watches are in place.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Dispatched returns how many paths were handed to workers.
func (w *Watcher) Dispatched() int64 {
	return w.dispatched.Load()
}

// Run watches until ctx ends, then unsubscribes, lets the workers finish
// every queued path and returns.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(Stopped), int32(Watching)) {
		return ErrRunning
	}
	defer w.state.Store(int32(Stopped))

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(w.root); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	drainCtx := context.WithoutCancel(ctx)
	w.queue = make(chan string, w.opts.QueueSize)
	var wg sync.WaitGroup
	for range w.opts.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range w.queue {
				w.handler(drainCtx, path)
			}
		}()
	}

	var debounce *debouncer
	var tick <-chan time.Time
	if w.opts.Debounce > 0 {
		debounce = newDebouncer(w.opts.Debounce)
		ticker := time.NewTicker(tickInterval(w.opts.Debounce))
		defer ticker.Stop()
		tick = ticker.C
	}

	w.addTree(ctx, fsw, w.root, false, debounce)
	w.readyOnce.Do(func() { close(w.ready) })
	logger.Infof("Watching %s with %d workers", w.root, w.opts.Concurrency)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case event, ok := <-fsw.Events:
			if !ok {
				break loop
			}
			w.handleEvent(ctx, fsw, event, debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				break loop
			}
			logger.WithFields(logger.Fields{"root": w.root, "error": err}).Warn("File watcher error")
		case now := <-tick:
			for _, path := range debounce.due(now) {
				w.dispatch(ctx, path)
			}
		}
	}

	if err := fsw.Close(); err != nil {
		logger.Warnf("Error closing file watcher: %v", err)
	}
	if debounce != nil {
		for _, path := range debounce.drain() {
			w.dispatch(drainCtx, path)
		}
	}
	close(w.queue)
	wg.Wait()
	logger.Infof("Stopped watching %s", w.root)
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event, debounce *debouncer) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	// A path that vanished before the stat is still dispatched so the
	// failed read gets reported.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && !w.skipDir(event.Name) {
			w.addTree(ctx, fsw, event.Name, true, debounce)
		}
		return
	}
	w.submit(ctx, event.Name, debounce)
}

// addTree watches dir and every directory below it. With dispatchFiles set,
// files already present are submitted too, covering writes that landed
// before the watch was added.
func (w *Watcher) addTree(ctx context.Context, fsw *fsnotify.Watcher, dir string, dispatchFiles bool, debounce *debouncer) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Failed to access %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != w.root && w.skipDir(path) {
				return fs.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				logger.Warnf("Failed to watch %s: %v", path, err)
			}
			return nil
		}
		if dispatchFiles && d.Type().IsRegular() {
			w.submit(ctx, path, debounce)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warnf("Error walking %s: %v", dir, err)
	}
}

func (w *Watcher) submit(ctx context.Context, path string, debounce *debouncer) {
	if w.opts.Filter != nil && w.opts.Filter.Excluded(path) {
		return
	}
	if debounce != nil {
		debounce.touch(path, time.Now())
		return
	}
	w.dispatch(ctx, path)
}

// dispatch blocks on a full queue while ctx is live. Every scan is bounded
// by its own timeout, so the queue keeps moving.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
	}
	select {
	case w.queue <- path:
		w.dispatched.Add(1)
	case <-ctx.Done():
		logger.Debugf("Dropped %s: watcher stopping", path)
	}
}

func (w *Watcher) skipDir(path string) bool {
	return w.opts.Filter != nil && w.opts.Filter.SkipDir(path)
}
