package mirror

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 200 * time.Millisecond
)

// EventKind classifies what happened to a watched file.
type EventKind string

const (
	// EventAdded fires for files not seen before: new files and every file
	// found by the initial scan.
	EventAdded EventKind = "added"
	// EventModified fires for writes to files the watcher already knows.
	EventModified EventKind = "modified"
)

// Event is one debounced, classified change under the watch root.
type Event struct {
	Path string // absolute
	Kind EventKind
}

// FilterCallback is a function that returns true if the path should be ignored
type FilterCallback func(path string) bool

// Watcher turns raw filesystem notifications into Added/Modified events.
// Writes are debounced per path so only write-stable files surface. Removed
// or renamed paths are forgotten, never reported: a later re-create is Added
// again.
type Watcher struct {
	watchDir  string
	events    chan Event
	rawEvents chan notify.EventInfo
	known     mapset.Set[string]
	ready     chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	senderWg  sync.WaitGroup
	// Debouncing fields
	pendingEvents   map[string]notify.EventInfo
	eventTimers     map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceClosed  bool
	debounceTimeout time.Duration
	// Raw event filtering
	ignoreCallback FilterCallback
	callbackMu     sync.RWMutex
}

func NewWatcher(watchDir string) *Watcher {
	return &Watcher{
		watchDir:        watchDir,
		known:           mapset.NewSet[string](),
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
		pendingEvents:   make(map[string]notify.EventInfo),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

// SetDebounceTimeout sets the per-path quiet window for write events
func (w *Watcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

// FilterPaths sets a callback to drop raw events before debouncing.
// The callback should return true if the path should be ignored.
func (w *Watcher) FilterPaths(callback FilterCallback) {
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.ignoreCallback = callback
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.watchDir)

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan Event, eventBufferSize)

	recursivePath := w.watchDir + "/..."
	mask := notify.Create | notify.Write | notify.Remove | notify.Rename
	if err := notify.Watch(recursivePath, w.rawEvents, mask); err != nil {
		return err
	}

	w.senderWg.Add(2)
	go w.initialScan(ctx)
	go w.filterEvents(ctx)

	// The events channel closes only after every sender is finished.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.senderWg.Wait()
		close(w.events)
	}()

	return nil
}

func (w *Watcher) Stop() {
	slog.Info("watcher stopping")

	close(w.done)

	// Stop notify watching (this closes the raw channel automatically)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}

	w.senderWg.Wait()
	w.wg.Wait()

	slog.Info("watcher stopped")
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Ready is closed once the initial scan of pre-existing files has been
// emitted.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) filtered(path string) bool {
	w.callbackMu.RLock()
	defer w.callbackMu.RUnlock()
	return w.ignoreCallback != nil && w.ignoreCallback(path)
}

// initialScan walks the tree and reports every existing regular file as
// Added. Without it, files written while the daemon was down would never
// surface.
func (w *Watcher) initialScan(ctx context.Context) {
	defer w.senderWg.Done()
	defer close(w.ready)

	count := 0
	err := filepath.WalkDir(w.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("watcher scan", "path", path, "error", err)
			return nil
		}

		select {
		case <-w.done:
			return fs.SkipAll
		case <-ctx.Done():
			return fs.SkipAll
		default:
		}

		if path != w.watchDir && w.filtered(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		w.known.Add(path)
		if !w.sendBlocking(Event{Path: path, Kind: EventAdded}) {
			return fs.SkipAll
		}
		count++
		return nil
	})
	if err != nil {
		slog.Warn("watcher scan aborted", "error", err)
	}

	slog.Info("watcher scan complete", "files", count)
}

// filterEvents filters out ignored paths, debounces events, and forwards the rest
func (w *Watcher) filterEvents(ctx context.Context) {
	defer func() {
		slog.Debug("watcher filter events done")

		// Cancel all pending timers and drop pending events. The closed flag
		// keeps a timer that already fired from emitting after this point.
		w.debounceMu.Lock()
		w.debounceClosed = true
		for path, timer := range w.eventTimers {
			timer.Stop()
			delete(w.eventTimers, path)
			if _, exists := w.pendingEvents[path]; exists {
				delete(w.pendingEvents, path)
				slog.Debug("watcher dropping pending event on exit", "path", path)
			}
		}
		w.debounceMu.Unlock()

		w.senderWg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}

			if w.filtered(event.Path()) {
				continue
			}

			// Debounce remaining events.
			// On linux a single file write triggers a burst of WRITE events
			// until the file is completely written; the trade is added
			// latency of one quiet window per event.
			w.debounceEvent(event)
		}
	}
}

// debounceEvent handles debouncing logic for file events
func (w *Watcher) debounceEvent(event notify.EventInfo) {
	path := event.Path()

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	// Cancel existing timer for this path if it exists
	if timer, exists := w.eventTimers[path]; exists {
		timer.Stop()
		delete(w.eventTimers, path)
	}

	// Store/update the pending event for this path
	w.pendingEvents[path] = event

	// Create a new timer to flush this event after the debounce timeout
	timer := time.AfterFunc(w.debounceTimeout, func() {
		w.flushEvent(path)
	})

	w.eventTimers[path] = timer
}

// flushEvent classifies the settled raw event for a path and emits it.
// The mutex is held through the send so the events channel cannot close
// underneath it.
func (w *Watcher) flushEvent(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceClosed {
		return
	}
	event, exists := w.pendingEvents[path]
	if !exists {
		return
	}
	delete(w.pendingEvents, path)
	delete(w.eventTimers, path)

	switch event.Event() {
	case notify.Remove, notify.Rename:
		// Forget the path so a re-create surfaces as Added again.
		w.known.Remove(path)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Vanished between the raw event and the flush.
		w.known.Remove(path)
		return
	}
	if info.IsDir() {
		return
	}

	kind := EventModified
	if !w.known.Contains(path) {
		kind = EventAdded
		w.known.Add(path)
	}

	w.send(Event{Path: path, Kind: kind})
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
		slog.Debug("watcher", "event", ev.Kind, "path", ev.Path)
	default:
		slog.Warn("watcher dropped", "reason", "channel full", "path", ev.Path)
	}
}

func (w *Watcher) sendBlocking(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}
