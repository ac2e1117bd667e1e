package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/dshills/patchwork/internal/config/loader"
	"github.com/dshills/patchwork/internal/config/notify"
	"github.com/dshills/patchwork/internal/config/watcher"
	"github.com/dshills/patchwork/internal/logging"
)

// Well-known setting keys.
const (
	// KeyRemoveMaxRes forces the decode-size selector to its smallest size
	// class and drops the maximum-dimension query from media URLs.
	KeyRemoveMaxRes = "removeMaxRes"

	// KeyLogLevel overrides the logger's minimum level.
	KeyLogLevel = "logLevel"
)

// Store is a persisted table of settings.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// values is defaults overlaid with file; file holds what is persisted.
	values   map[string]any
	defaults map[string]any
	file     map[string]any
	closed   bool

	loader   *loader.FileLoader
	notifier *notify.Notifier
	watcher  *watcher.Watcher
	logger   *logging.Logger
	debounce time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaults seeds values that apply until the file or a Set overrides them.
func WithDefaults(defaults map[string]any) Option {
	return func(s *Store) {
		for k, v := range defaults {
			s.defaults[k] = v
		}
	}
}

// WithReloadDebounce sets how long file events are coalesced before a reload.
func WithReloadDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

func newStore(opts []Option) *Store {
	s := &Store{
		defaults: make(map[string]any),
		file:     make(map[string]any),
		notifier: notify.New(),
		logger:   logging.Discard(),
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.values = s.overlay(s.file)
	return s
}

func (s *Store) overlay(file map[string]any) map[string]any {
	values := loader.Clone(s.defaults)
	for k, v := range file {
		values[k] = v
	}
	return values
}

// NewMemory creates a store with no backing file.
func NewMemory(opts ...Option) *Store {
	return newStore(opts)
}

// Open creates a store backed by the settings file at path. A missing file
// is not an error; it is created on the first SetBool.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open settings: %w", ErrInvalidKey)
	}

	s := newStore(opts)
	s.loader = loader.New(path)

	data, err := s.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	if data != nil {
		s.file = data
	}
	s.values = s.overlay(s.file)

	s.logger.Debug("loaded settings from %s (%d keys)", path, len(data))
	return s, nil
}

// DefaultPath returns the default settings file location.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "patchwork", "settings.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "settings.toml"
	}
	return filepath.Join(home, ".config", "patchwork", "settings.toml")
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	if s.loader == nil {
		return ""
	}
	return s.loader.Path()
}

// Get returns the raw value stored for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// LookupBool returns the boolean stored for key.
func (s *Store) LookupBool(key string) (bool, error) {
	v, ok := s.Get(key)
	if !ok {
		return false, fmt.Errorf("%s: %w", key, ErrSettingNotFound)
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Key: key, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// Bool returns the boolean stored for key, or def when the key is unset or
// holds another type.
func (s *Store) Bool(key string, def bool) bool {
	b, err := s.LookupBool(key)
	if err != nil {
		return def
	}
	return b
}

// String returns the string stored for key, or def.
func (s *Store) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// SetBool stores value under key, persists the table and publishes a change.
// Storing the value the key already holds does nothing.
func (s *Store) SetBool(key string, value bool) error {
	return s.set(key, value)
}

// SetString stores value under key, persists the table and publishes a change.
func (s *Store) SetString(key, value string) error {
	return s.set(key, value)
}

func (s *Store) set(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	old, had := s.values[key]
	if had && equalValues(old, value) {
		s.mu.Unlock()
		return nil
	}

	file := loader.Clone(s.file)
	file[key] = value
	if s.loader != nil {
		if err := s.loader.Save(file); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	s.file = file
	s.values = s.overlay(file)
	s.mu.Unlock()

	s.logger.Debug("setting %s changed: %v -> %v", key, old, value)
	s.notifier.NotifySet(key, old, value, notify.SourceAPI)
	return nil
}

// Subscribe registers an observer for every change.
func (s *Store) Subscribe(observer notify.Observer) *notify.Subscription {
	return s.notifier.Subscribe(observer)
}

// SubscribeKey registers an observer for changes to key.
func (s *Store) SubscribeKey(key string, observer notify.Observer) *notify.Subscription {
	return s.notifier.SubscribeKey(key, observer)
}

// Reload re-reads the backing file and publishes one change per key whose
// value differs. Keys missing from the file are reported as deletes.
func (s *Store) Reload() error {
	if s.loader == nil {
		return ErrNotPersistent
	}

	data, err := s.loader.Load()
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next := s.overlay(data)
	batch := s.notifier.NewBatch()
	for _, key := range unionKeys(s.values, next) {
		old, had := s.values[key]
		cur, has := next[key]
		switch {
		case had && !has:
			batch.Add(notify.Change{Key: key, Type: notify.ChangeDelete, Old: old, Source: notify.SourceFile})
		case !had || !equalValues(old, cur):
			batch.Set(key, old, cur, notify.SourceFile)
		}
	}
	s.file = data
	s.values = next
	s.mu.Unlock()

	if n := batch.Len(); n > 0 {
		s.logger.Debug("reloaded %s: %d changed keys", s.loader.Path(), n)
	}
	batch.Commit()
	return nil
}

// Start begins watching the backing file for external edits.
func (s *Store) Start() error {
	if s.loader == nil {
		return ErrNotPersistent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.watcher != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.loader.Path()), 0o755); err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}

	w, err := watcher.New(watcher.WithDebounce(s.debounce))
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	if err := w.Watch(s.loader.Path()); err != nil {
		w.Close()
		return fmt.Errorf("watch settings: %w", err)
	}
	w.OnChange(s.handleFileChange)
	w.Start()
	s.watcher = w

	s.logger.Debug("watching %s", s.loader.Path())
	return nil
}

func (s *Store) handleFileChange(event watcher.Event) {
	s.logger.Debug("settings file %s: %s", event.Op, event.Path)
	if err := s.Reload(); err != nil {
		s.logger.Warn("reloading settings failed: %v", err)
	}
}

// Close stops the watcher and the notifier. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	s.notifier.Close()
	return err
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// equalValues compares scalars; values of incomparable types never compare
// equal, so they are always reported as changed.
func equalValues(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
