// Package watcher reports changes to a set of config files.
//
// Parent directories are watched rather than the files themselves so
// editors that save by renaming a temporary file are still observed.
// Bursts of events are coalesced and delivered once the files settle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long files must be quiet before handlers run.
const DefaultDebounce = 100 * time.Millisecond

// ErrClosed indicates the watcher was closed.
var ErrClosed = errors.New("watcher closed")

// Event represents a file change event.
type Event struct {
	// Path is the absolute path to the changed file.
	Path string

	// Op is the operation that triggered the event.
	Op Operation

	// Time is when the last event for the file arrived.
	Time time.Time
}

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the file was modified.
	OpWrite Operation = iota

	// OpCreate indicates a new file was created.
	OpCreate

	// OpRemove indicates the file was deleted.
	OpRemove

	// OpRename indicates the file was renamed away.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Handler receives the settled changes of one burst, sorted by path.
type Handler func(events []Event)

// Watcher monitors files for changes.
type Watcher struct {
	mu sync.Mutex

	fsw *fsnotify.Watcher

	files    map[string]struct{}
	dirs     map[string]struct{}
	handlers []Handler

	debounce time.Duration
	logger   *slog.Logger

	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero delivers every event at once.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher with no files.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Add starts watching paths. The files need not exist yet but their
// directories must.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(abs)
		if _, ok := w.dirs[dir]; !ok {
			if err := w.fsw.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			w.dirs[dir] = struct{}{}
		}
		w.files[abs] = struct{}{}
	}
	return nil
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// OnChange registers a handler for file change events.
func (w *Watcher) OnChange(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Run delivers events until ctx is done or the watcher is closed.
// Handlers run on the calling goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]Event)

	var timer *time.Timer
	var settle <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			event, ok := w.convert(fsEvent)
			if !ok {
				continue
			}
			coalesce(pending, event)

			if w.debounce == 0 {
				w.flush(pending)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			settle = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", slog.String("error", err.Error()))

		case <-settle:
			settle = nil
			w.flush(pending)
		}
	}
}

// Close stops the watcher. Run returns once it observes the close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	return w.fsw.Close()
}

func (w *Watcher) convert(fsEvent fsnotify.Event) (Event, bool) {
	path := filepath.Clean(fsEvent.Name)

	w.mu.Lock()
	_, watched := w.files[path]
	w.mu.Unlock()
	if !watched {
		return Event{}, false
	}

	var op Operation
	switch {
	case fsEvent.Has(fsnotify.Remove):
		op = OpRemove
	case fsEvent.Has(fsnotify.Rename):
		op = OpRename
	case fsEvent.Has(fsnotify.Create):
		op = OpCreate
	case fsEvent.Has(fsnotify.Write):
		op = OpWrite
	default:
		return Event{}, false
	}
	return Event{Path: path, Op: op, Time: time.Now()}, true
}

// coalesce merges event into pending:
//   - remove and rename override anything earlier
//   - create survives later writes
//   - a create after a remove becomes a write
func coalesce(pending map[string]Event, event Event) {
	existing, ok := pending[event.Path]
	if !ok {
		pending[event.Path] = event
		return
	}

	switch event.Op {
	case OpWrite:
		event.Op = existing.Op
		if existing.Op == OpRemove || existing.Op == OpRename {
			event.Op = OpWrite
		}
	case OpCreate:
		if existing.Op == OpRemove || existing.Op == OpRename {
			event.Op = OpWrite
		}
	}
	pending[event.Path] = event
}

func (w *Watcher) flush(pending map[string]Event) {
	if len(pending) == 0 {
		return
	}

	events := make([]Event, 0, len(pending))
	for path, event := range pending {
		events = append(events, event)
		delete(pending, path)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	w.mu.Lock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, event := range events {
		w.logger.Debug("Config file changed",
			slog.String("path", event.Path),
			slog.String("op", event.Op.String()))
	}
	for _, h := range handlers {
		h(events)
	}
}
