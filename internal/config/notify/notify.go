// Package notify delivers settings change notifications.
//
// Observers subscribe either to every change or to a single key. Delivery is
// synchronous by default and always happens outside the notifier's lock, so
// an observer may subscribe, unsubscribe or trigger further changes while it
// runs. Observers are called in subscription order.
package notify

import (
	"slices"
	"sync"
)

// ChangeType represents the type of settings change.
type ChangeType int

const (
	// ChangeSet indicates a value was set or updated.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates a value was removed.
	ChangeDelete

	// ChangeReload indicates the whole settings file was re-read.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Source values used by the settings store.
const (
	SourceAPI  = "api"
	SourceFile = "file"
)

// Change represents a settings change event.
type Change struct {
	// Key is the changed setting. Empty for reload events.
	Key string

	Type ChangeType

	// Old is the previous value (nil when the key was unset).
	Old any

	// New is the current value (nil for deletes).
	New any

	// Source identifies where the change came from.
	Source string
}

// Observer is called when a setting changes.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	key      string
	notifier *Notifier
}

// Key returns the subscribed key, or "" for a global subscription.
func (s *Subscription) Key() string {
	return s.key
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type subscriber struct {
	id       uint64
	key      string
	observer Observer
}

// Notifier manages change subscriptions.
type Notifier struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64

	async  bool
	buffer chan Change
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync enables asynchronous delivery through a buffered queue.
// Ordering is still preserved.
func WithAsync(bufferSize int) Option {
	return func(n *Notifier) {
		if bufferSize > 0 {
			n.async = true
			n.buffer = make(chan Change, bufferSize)
		}
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.async {
		n.wg.Add(1)
		go n.processAsync()
	}
	return n
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.subscribe("", observer)
}

// SubscribeKey registers an observer for changes to key. Reload events are
// delivered to key observers as well.
func (n *Notifier) SubscribeKey(key string, observer Observer) *Subscription {
	return n.subscribe(key, observer)
}

func (n *Notifier) subscribe(key string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscriber{id: id, key: key, observer: observer})

	return &Subscription{id: id, key: key, notifier: n}
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Notify sends a change notification to all matching observers.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	n.mu.RUnlock()

	if n.async {
		select {
		case n.buffer <- change:
		case <-n.done:
		}
		return
	}

	n.deliver(change)
}

// NotifySet is a convenience method for set changes.
func (n *Notifier) NotifySet(key string, oldValue, newValue any, source string) {
	n.Notify(Change{
		Key:    key,
		Type:   ChangeSet,
		Old:    oldValue,
		New:    newValue,
		Source: source,
	})
}

// NotifyDelete is a convenience method for delete changes.
func (n *Notifier) NotifyDelete(key string, oldValue any, source string) {
	n.Notify(Change{
		Key:    key,
		Type:   ChangeDelete,
		Old:    oldValue,
		Source: source,
	})
}

// Close shuts down the notifier. It is safe to call Close multiple times.
// Pending asynchronous changes are drained before Close returns.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subs = slices.DeleteFunc(n.subs, func(s subscriber) bool {
		return s.id == id
	})
}

// deliver calls every matching observer outside the lock.
func (n *Notifier) deliver(change Change) {
	n.mu.RLock()
	var observers []Observer
	for _, s := range n.subs {
		if s.key == "" || change.Key == "" || s.key == change.Key {
			observers = append(observers, s.observer)
		}
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(change)
	}
}

func (n *Notifier) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case change := <-n.buffer:
			n.deliver(change)
		case <-n.done:
			for {
				select {
				case change := <-n.buffer:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// Batch collects multiple changes and delivers them as a group.
type Batch struct {
	notifier *Notifier
	mu       sync.Mutex
	changes  []Change
}

// NewBatch creates a new batch for collecting changes.
func (n *Notifier) NewBatch() *Batch {
	return &Batch{notifier: n}
}

// Add adds a change to the batch.
func (b *Batch) Add(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change)
}

// Set adds a set change to the batch.
func (b *Batch) Set(key string, oldValue, newValue any, source string) {
	b.Add(Change{
		Key:    key,
		Type:   ChangeSet,
		Old:    oldValue,
		New:    newValue,
		Source: source,
	})
}

// Commit sends all batched changes to observers in the order they were added.
func (b *Batch) Commit() {
	b.mu.Lock()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()

	for _, change := range changes {
		b.notifier.Notify(change)
	}
}

// Discard clears the batch without sending notifications.
func (b *Batch) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = nil
}

// Len returns the number of pending changes.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changes)
}
