package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/logging"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/host"
)

// Manager manages the lifecycle of all plugins.
type Manager struct {
	mu sync.RWMutex

	// Loaded plugins by name
	plugins map[string]*Instance

	// Plugin load order (for deterministic iteration)
	loadOrder []string

	eventHandlers []EventHandler

	config ManagerConfig
}

// ManagerConfig holds the shared collaborators handed to every plugin.
type ManagerConfig struct {
	Catalog  *host.Catalog
	Settings *config.Store
	Registry *hook.Registry

	// Logger defaults to a discarding logger.
	Logger *logging.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// EventHandler handles plugin manager events.
// Handlers must not call back into the Manager. Panics in handlers are
// recovered.
type EventHandler func(event ManagerEvent)

// ManagerEvent represents a plugin manager event.
type ManagerEvent struct {
	Type   ManagerEventType
	Plugin string
	Error  error
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted when a plugin is loaded.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginUnloaded is emitted when a plugin is unloaded.
	EventPluginUnloaded
	// EventPluginActivated is emitted when a plugin is activated.
	EventPluginActivated
	// EventPluginDeactivated is emitted when a plugin is deactivated.
	EventPluginDeactivated
	// EventPluginError is emitted when a plugin lifecycle step fails.
	EventPluginError
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginActivated:
		return "activated"
	case EventPluginDeactivated:
		return "deactivated"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// NewManager creates a plugin manager. A nil Registry or Settings is
// replaced with a fresh in-memory one.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Registry == nil {
		cfg.Registry = hook.NewRegistry()
	}
	if cfg.Settings == nil {
		cfg.Settings = config.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Manager{
		plugins: make(map[string]*Instance),
		config:  cfg,
	}
}

// Registry returns the hook registry plugins install into.
func (m *Manager) Registry() *hook.Registry {
	return m.config.Registry
}

// Load registers a plugin and prepares its environment.
func (m *Manager) Load(p Plugin) (*Instance, error) {
	if p == nil || p.Name() == "" {
		return nil, ErrInvalidPlugin
	}
	name := p.Name()

	m.mu.Lock()
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}

	logger := m.config.Logger.WithComponent(name)
	env := &Env{
		Catalog:  m.config.Catalog,
		Settings: m.config.Settings,
		Patcher: patcher.New(name, m.config.Registry,
			patcher.WithLogger(logger),
			patcher.WithMetrics(m.config.Metrics),
		),
		Logger:  logger,
		Metrics: m.config.Metrics,
	}
	inst := newInstance(p, env)
	m.plugins[name] = inst
	m.loadOrder = append(m.loadOrder, name)
	m.mu.Unlock()

	m.emitEvent(ManagerEvent{Type: EventPluginLoaded, Plugin: name})
	return inst, nil
}

// Unload deactivates a plugin if needed and removes it.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	inst, exists := m.plugins[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	delete(m.plugins, name)
	m.removeFromLoadOrder(name)
	m.mu.Unlock()

	err := inst.Deactivate(ctx)
	inst.mu.Lock()
	inst.state = StateUnloaded
	inst.mu.Unlock()

	m.emitEvent(ManagerEvent{Type: EventPluginUnloaded, Plugin: name, Error: err})
	return err
}

// Get returns a plugin instance by name.
func (m *Manager) Get(name string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.plugins[name]
	return inst, ok
}

// List returns all plugin instances in load order.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Instance, 0, len(m.loadOrder))
	for _, name := range m.loadOrder {
		result = append(result, m.plugins[name])
	}
	return result
}

// Activate activates a loaded plugin.
func (m *Manager) Activate(ctx context.Context, name string) error {
	m.mu.RLock()
	inst, exists := m.plugins[name]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}

	if err := inst.Activate(ctx); err != nil {
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return err
	}

	m.emitEvent(ManagerEvent{Type: EventPluginActivated, Plugin: name})
	return nil
}

// ActivateAll activates all loaded plugins in load order. A failing plugin
// does not prevent the others from activating.
func (m *Manager) ActivateAll(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, len(m.loadOrder))
	copy(names, m.loadOrder)
	m.mu.RUnlock()

	var activateErrors []error
	for _, name := range names {
		if err := m.Activate(ctx, name); err != nil {
			activateErrors = append(activateErrors, err)
		}
	}

	if len(activateErrors) > 0 {
		return fmt.Errorf("failed to activate %d plugins: %w", len(activateErrors), errors.Join(activateErrors...))
	}
	return nil
}

// Deactivate deactivates an active plugin.
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	m.mu.RLock()
	inst, exists := m.plugins[name]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}

	wasActive := inst.State() == StateActive
	if err := inst.Deactivate(ctx); err != nil {
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return err
	}

	if wasActive {
		m.emitEvent(ManagerEvent{Type: EventPluginDeactivated, Plugin: name})
	}
	return nil
}

// DeactivateAll deactivates all plugins in reverse load order.
func (m *Manager) DeactivateAll(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, len(m.loadOrder))
	for i, name := range m.loadOrder {
		names[len(m.loadOrder)-1-i] = name
	}
	m.mu.RUnlock()

	var deactivateErrors []error
	for _, name := range names {
		if err := m.Deactivate(ctx, name); err != nil {
			deactivateErrors = append(deactivateErrors, err)
		}
	}

	if len(deactivateErrors) > 0 {
		return fmt.Errorf("failed to deactivate %d plugins: %w", len(deactivateErrors), errors.Join(deactivateErrors...))
	}
	return nil
}

// Subscribe adds an event handler and returns a function that removes it.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// CountActive returns the number of active plugins.
func (m *Manager) CountActive() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, inst := range m.plugins {
		if inst.State() == StateActive {
			count++
		}
	}
	return count
}

// Errors returns the start errors of plugins in the error state.
func (m *Manager) Errors() map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errs := make(map[string]error)
	for name, inst := range m.plugins {
		if inst.State() == StateError && inst.Err() != nil {
			errs[name] = inst.Err()
		}
	}
	return errs
}

// emitEvent sends an event to all handlers outside the lock.
func (m *Manager) emitEvent(event ManagerEvent) {
	m.mu.RLock()
	handlers := make([]EventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover() // Ignore panics from handlers
			}()
			handler(event)
		}()
	}
}

// removeFromLoadOrder removes a name from the load order slice.
// Must be called with mu held.
func (m *Manager) removeFromLoadOrder(name string) {
	for i, n := range m.loadOrder {
		if n == name {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			return
		}
	}
}
