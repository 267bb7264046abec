package watcher

import (
	"sort"
	"time"
)

type pendingPath struct {
	path string
	due  time.Time
}

// debouncer coalesces repeated events for a path. Every touch pushes the
// deadline out by the window; a path is released once it has been quiet for
// the whole window. It is owned by the event loop and is not synchronized.
type debouncer struct {
	window  time.Duration
	pending map[string]pendingPath
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, pending: make(map[string]pendingPath)}
}

func (d *debouncer) touch(path string, now time.Time) {
	d.pending[path] = pendingPath{path: path, due: now.Add(d.window)}
}

// due removes and returns the paths whose window has elapsed.
func (d *debouncer) due(now time.Time) []string {
	var ready []pendingPath
	for path, p := range d.pending {
		if !p.due.After(now) {
			ready = append(ready, p)
			delete(d.pending, path)
		}
	}
	return orderPending(ready)
}

// drain removes and returns every pending path.
func (d *debouncer) drain() []string {
	ready := make([]pendingPath, 0, len(d.pending))
	for path, p := range d.pending {
		ready = append(ready, p)
		delete(d.pending, path)
	}
	return orderPending(ready)
}

func (d *debouncer) len() int {
	return len(d.pending)
}

func orderPending(items []pendingPath) []string {
	sort.Slice(items, func(i, j int) bool {
		if items[i].due.Equal(items[j].due) {
			return items[i].path < items[j].path
		}
		return items[i].due.Before(items[j].due)
	})
	paths := make([]string, len(items))
	for i, p := range items {
		paths[i] = p.path
	}
	return paths
}

func tickInterval(window time.Duration) time.Duration {
	interval := window / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}
