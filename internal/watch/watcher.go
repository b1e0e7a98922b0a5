// Package watch reports debounced file changes below a directory tree.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	DefaultDebounceTimeout = 50 * time.Millisecond
)

// Mask is the set of events a Watcher subscribes to.
const Mask = notify.Write | notify.Create | notify.Remove | notify.Rename

// FilterFunc returns true for paths whose events should be dropped.
type FilterFunc func(path string) bool

// Watcher forwards at most one event per path per debounce window. Editors
// and copy operations emit bursts of writes for a single save.
type Watcher struct {
	dir       string
	rawEvents chan notify.EventInfo
	events    chan notify.EventInfo
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	filter   FilterFunc
	debounce time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[string]notify.EventInfo
	timers  map[string]*time.Timer
}

func New(dir string) *Watcher {
	return &Watcher{
		dir:      dir,
		done:     make(chan struct{}),
		debounce: DefaultDebounceTimeout,
		pending:  make(map[string]notify.EventInfo),
		timers:   make(map[string]*time.Timer),
	}
}

// SetDebounceTimeout must be called before Start.
func (w *Watcher) SetDebounceTimeout(d time.Duration) {
	w.debounce = d
}

// Filter must be called before Start.
func (w *Watcher) Filter(fn FilterFunc) {
	w.filter = fn
}

// Start subscribes recursively to the directory. Events flow until ctx is
// done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan notify.EventInfo, eventBufferSize)

	if err := notify.Watch(w.dir+"/...", w.rawEvents, Mask); err != nil {
		return err
	}
	slog.Debug("watcher start", "dir", w.dir)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.rawEvents != nil {
			notify.Stop(w.rawEvents)
		}
		w.wg.Wait()
		slog.Debug("watcher stopped", "dir", w.dir)
	})
}

// Events is closed once the watcher stops.
func (w *Watcher) Events() <-chan notify.EventInfo {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.closed = true
		for path, timer := range w.timers {
			timer.Stop()
			delete(w.timers, path)
		}
		close(w.events)
		w.mu.Unlock()
		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.filter != nil && w.filter(ev.Path()) {
				continue
			}
			w.schedule(ev)
		}
	}
}

func (w *Watcher) schedule(ev notify.EventInfo) {
	path := ev.Path()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.pending[path] = ev
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.flush(path) })
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ev, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	if !ok || w.closed {
		return
	}

	select {
	case w.events <- ev:
		slog.Debug("watcher event", "event", ev.Event(), "path", path)
	default:
		slog.Warn("watcher dropped event", "reason", "channel full", "path", path)
	}
}
