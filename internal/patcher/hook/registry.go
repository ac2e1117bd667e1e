package hook

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/patchwork/internal/patcher/host"
	"github.com/dshills/patchwork/internal/patcher/signature"
)

// Handle is the token returned by Install. Revoking it removes the hook.
type Handle struct {
	id       uuid.UUID
	kind     Kind
	target   *signature.Target
	seq      uint64
	registry *Registry
	revoked  atomic.Bool
}

// ID returns a unique identifier for diagnostics.
func (h *Handle) ID() string {
	return h.id.String()
}

// Kind returns the kind of the hook.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Target returns the target the hook is installed on.
func (h *Handle) Target() *signature.Target {
	return h.target
}

// Revoked reports whether the hook has been removed.
func (h *Handle) Revoked() bool {
	return h.revoked.Load()
}

// Revoke removes the hook. Revoking twice, or after RevokeAll, is a no-op.
func (h *Handle) Revoke() {
	if h == nil || h.registry == nil {
		return
	}
	h.registry.revoke(h)
}

// entry is a registered hook. Every entry is owned by exactly one Handle.
type entry struct {
	handle   *Handle
	callback Callback
}

// snapshot is the immutable hook list a dispatch iterates.
type snapshot struct {
	before  []*entry
	instead *entry
	after   []*entry
}

// targetState holds the hooks of one call site.
// It is the host.Interceptor bound to that site while hooks exist.
type targetState struct {
	target  *signature.Target
	entries []*entry
	snap    atomic.Pointer[snapshot]
}

// rebuild publishes a fresh snapshot from the registered entries.
// The caller must hold the registry lock.
func (ts *targetState) rebuild() {
	s := &snapshot{}
	for _, e := range ts.entries {
		switch e.handle.kind {
		case Before:
			s.before = append(s.before, e)
		case InsteadOf:
			// Later registrations supersede earlier ones.
			s.instead = e
		case After:
			s.after = append(s.after, e)
		}
	}
	ts.snap.Store(s)
}

// EventType identifies a registry event.
type EventType int

// Registry events.
const (
	// EventInstalled is emitted after a hook is installed.
	EventInstalled EventType = iota
	// EventRevoked is emitted after a hook is revoked.
	EventRevoked
	// EventInstallFailed is emitted when a call site refuses interception.
	EventInstallFailed
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventInstalled:
		return "installed"
	case EventRevoked:
		return "revoked"
	case EventInstallFailed:
		return "install_failed"
	default:
		return "unknown"
	}
}

// Event describes a registry change.
type Event struct {
	Type   EventType
	Kind   Kind
	Target *signature.Target
	Handle *Handle
	Err    error
}

// EventHandler observes registry changes. Handlers run synchronously after
// the registry lock is released, so they may install or revoke hooks.
// Panics in handlers are recovered.
type EventHandler func(Event)

// Registry owns every installed hook, keyed by call site.
//
// Thread Safety:
// Install and revoke are serialized by a mutex. Dispatch never takes the
// mutex: it reads a copy-on-write snapshot, so hooks may install or revoke
// hooks while a call is in flight without deadlocking. The in-flight call
// keeps using the snapshot it started with.
type Registry struct {
	mu       sync.Mutex
	targets  map[*host.CallSite]*targetState
	seq      uint64
	handlers []EventHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		targets: make(map[*host.CallSite]*targetState),
	}
}

// OnEvent registers a handler for registry events.
func (r *Registry) OnEvent(handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Install attaches a hook of the given kind to target.
func (r *Registry) Install(target *signature.Target, kind Kind, cb Callback) (*Handle, error) {
	if target == nil || target.Method() == nil || target.Site() == nil {
		return nil, ErrNilTarget
	}
	if cb == nil {
		return nil, ErrNilCallback
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}

	site := target.Site()

	r.mu.Lock()
	ts, ok := r.targets[site]
	if !ok {
		ts = &targetState{target: target}
		if err := site.Attach(ts); err != nil {
			handlers := r.handlers
			r.mu.Unlock()
			ierr := &InstallError{Target: target, Err: err}
			r.emit(handlers, Event{Type: EventInstallFailed, Kind: kind, Target: target, Err: ierr})
			return nil, ierr
		}
		r.targets[site] = ts
	}

	r.seq++
	h := &Handle{
		id:       uuid.New(),
		kind:     kind,
		target:   ts.target,
		seq:      r.seq,
		registry: r,
	}
	ts.entries = append(ts.entries, &entry{handle: h, callback: cb})
	ts.rebuild()
	handlers := r.handlers
	r.mu.Unlock()

	r.emit(handlers, Event{Type: EventInstalled, Kind: kind, Target: ts.target, Handle: h})
	return h, nil
}

// revoke removes the hook owned by h.
// The flag flips under the registry lock so that exactly one of revoke and
// RevokeAll owns the transition and emits EventRevoked.
func (r *Registry) revoke(h *Handle) {
	r.mu.Lock()
	if !h.revoked.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return
	}
	site := h.target.Site()
	ts, ok := r.targets[site]
	if !ok {
		r.mu.Unlock()
		return
	}

	kept := ts.entries[:0:0]
	for _, e := range ts.entries {
		if e.handle != h {
			kept = append(kept, e)
		}
	}
	ts.entries = kept

	if len(ts.entries) == 0 {
		ts.snap.Store(nil)
		site.Detach(ts)
		delete(r.targets, site)
	} else {
		ts.rebuild()
	}
	handlers := r.handlers
	r.mu.Unlock()

	r.emit(handlers, Event{Type: EventRevoked, Kind: h.kind, Target: h.target, Handle: h})
}

// RevokeAll removes every hook and detaches every call site.
// It is safe to call any number of times.
func (r *Registry) RevokeAll() {
	r.mu.Lock()
	var revoked []*Handle
	for site, ts := range r.targets {
		for _, e := range ts.entries {
			if e.handle.revoked.CompareAndSwap(false, true) {
				revoked = append(revoked, e.handle)
			}
		}
		ts.entries = nil
		ts.snap.Store(nil)
		site.Detach(ts)
	}
	r.targets = make(map[*host.CallSite]*targetState)
	handlers := r.handlers
	r.mu.Unlock()

	for _, h := range revoked {
		r.emit(handlers, Event{Type: EventRevoked, Kind: h.kind, Target: h.target, Handle: h})
	}
}

// Handles returns the live handles on target in registration order.
func (r *Registry) Handles(target *signature.Target) []*Handle {
	if target == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.targets[target.Site()]
	if !ok {
		return nil
	}
	out := make([]*Handle, len(ts.entries))
	for i, e := range ts.entries {
		out[i] = e.handle
	}
	return out
}

// ActiveInstead returns the InsteadOf hook currently replacing target's
// body, or nil.
func (r *Registry) ActiveInstead(target *signature.Target) *Handle {
	if target == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.targets[target.Site()]
	if !ok {
		return nil
	}
	if s := ts.snap.Load(); s != nil && s.instead != nil {
		return s.instead.handle
	}
	return nil
}

// Len returns the number of live hooks across all targets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ts := range r.targets {
		n += len(ts.entries)
	}
	return n
}

// Targets returns the number of targets that currently carry hooks.
func (r *Registry) Targets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// emit delivers an event to handlers, recovering from handler panics.
func (r *Registry) emit(handlers []EventHandler, ev Event) {
	for _, h := range handlers {
		func() {
			defer func() {
				_ = recover()
			}()
			h(ev)
		}()
	}
}
