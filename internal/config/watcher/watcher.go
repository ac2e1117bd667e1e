// Package watcher reports changes to settings files so a store can reload
// edits made outside the process.
//
// It wraps fsnotify. Parent directories are watched rather than the files
// themselves, because editors and atomic writers replace files by rename,
// which would silently end a watch placed on the old inode.
package watcher

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when using a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// Event represents a file change event.
type Event struct {
	// Path is the absolute path to the changed file.
	Path string

	// Op is the operation that triggered the event.
	Op Operation

	// Time is when the event occurred.
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

	// OpRename indicates the file was renamed.
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

// operationOf maps an fsnotify op onto an Operation. ok is false for ops
// that do not change content, such as chmod.
func operationOf(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	default:
		return 0, false
	}
}

// Handler is called when a file change is detected.
type Handler func(event Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before its change is
// reported. Zero reports every event immediately.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// Watcher monitors files for changes.
type Watcher struct {
	mu sync.RWMutex

	fsw *fsnotify.Watcher

	// files maps watched absolute paths to true; dirs counts files per dir.
	files map[string]bool
	dirs  map[string]int

	handlers []Handler
	errors   []error

	debounce time.Duration
	pending  map[string]*pendingEvent

	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	started bool
}

// pendingEvent is a debounced event waiting for its file to go quiet.
type pendingEvent struct {
	op    Operation
	timer *time.Timer
}

// New creates a file watcher. Call Start to begin delivering events.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]bool),
		dirs:     make(map[string]int),
		debounce: 100 * time.Millisecond,
		pending:  make(map[string]*pendingEvent),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds a file to the watch list. The file need not exist yet, but its
// directory must.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.files[absPath] {
		return nil
	}

	dir := filepath.Dir(absPath)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[absPath] = true
	return nil
}

// Unwatch removes a file from the watch list.
func (w *Watcher) Unwatch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if !w.files[absPath] {
		return nil
	}
	delete(w.files, absPath)

	dir := filepath.Dir(absPath)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		return w.fsw.Remove(dir)
	}
	return nil
}

// OnChange registers a handler for file change events.
func (w *Watcher) OnChange(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins delivering events. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true

	w.wg.Add(1)
	go w.loop()
}

// Close stops the watcher. It is safe to call Close multiple times.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// WatchedFiles returns the watched absolute paths.
func (w *Watcher) WatchedFiles() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	files := make([]string, 0, len(w.files))
	for path := range w.files {
		files = append(files, path)
	}
	return files
}

// Errors returns errors reported by fsnotify so far.
func (w *Watcher) Errors() []error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]error(nil), w.errors...)
}

// loop forwards fsnotify events for watched files.
func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.errors = append(w.errors, err)
			w.mu.Unlock()
		}
	}
}

// handle filters an fsnotify event down to watched files.
func (w *Watcher) handle(ev fsnotify.Event) {
	op, ok := operationOf(ev.Op)
	if !ok {
		return
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}

	w.mu.RLock()
	watched := w.files[path]
	w.mu.RUnlock()
	if !watched {
		return
	}

	event := Event{Path: path, Op: op, Time: time.Now()}
	if w.debounce > 0 {
		w.queueEvent(event)
		return
	}
	w.emitEvent(event)
}

// queueEvent delays event until its file has been quiet for the debounce
// period. Coalescing keeps a remove over anything else and a create over a
// write.
func (w *Watcher) queueEvent(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if p, ok := w.pending[event.Path]; ok {
		switch {
		case event.Op == OpRemove:
			p.op = OpRemove
		case event.Op == OpCreate && p.op != OpRemove:
			p.op = OpCreate
		case p.op == OpWrite:
			p.op = event.Op
		}
		p.timer.Reset(w.debounce)
		return
	}

	p := &pendingEvent{op: event.Op}
	path := event.Path
	p.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		cur, ok := w.pending[path]
		if !ok || cur != p || w.closed {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		op := cur.op
		w.mu.Unlock()

		w.emitEvent(Event{Path: path, Op: op, Time: time.Now()})
	})
	w.pending[path] = p
}

// emitEvent calls all handlers with the event.
// Handlers are called with panic recovery so one bad handler cannot stop
// delivery.
func (w *Watcher) emitEvent(event Event) {
	w.mu.RLock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, handler := range handlers {
		safeCallHandler(handler, event)
	}
}

// safeCallHandler calls a handler with panic recovery.
func safeCallHandler(handler Handler, event Event) {
	defer func() {
		_ = recover()
	}()
	handler(event)
}
