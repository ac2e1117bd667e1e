package plugin

import (
	"context"
	"sync"
)

// State represents the lifecycle state of a plugin.
type State int

// Plugin states.
const (
	// StateLoaded - registered with the manager, no hooks installed.
	StateLoaded State = iota

	// StateActivating - Start is running.
	StateActivating

	// StateActive - Start succeeded.
	StateActive

	// StateDeactivating - Stop is running.
	StateDeactivating

	// StateError - Start failed. The plugin may be activated again.
	StateError

	// StateUnloaded - removed from the manager.
	StateUnloaded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateError:
		return "error"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// CanActivate reports whether Activate may be called in this state.
func (s State) CanActivate() bool {
	return s == StateLoaded || s == StateError
}

// Instance tracks one plugin's lifecycle and owns its Env.
type Instance struct {
	mu sync.Mutex

	plugin Plugin
	env    *Env
	state  State
	err    error
}

// Name returns the plugin name.
func (i *Instance) Name() string {
	return i.plugin.Name()
}

// Plugin returns the wrapped plugin.
func (i *Instance) Plugin() Plugin {
	return i.plugin
}

// Env returns the plugin's environment.
func (i *Instance) Env() *Env {
	return i.env
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the error from the last failed Start, if any.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Activate runs the plugin's Start. If Start fails, every hook it managed
// to install is revoked and the instance moves to StateError.
func (i *Instance) Activate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.state.CanActivate() {
		if i.state == StateActive {
			return nil
		}
		return &Error{Plugin: i.Name(), Op: "activate", Err: ErrNotLoaded}
	}

	i.state = StateActivating
	if err := i.plugin.Start(ctx, i.env); err != nil {
		revoked := i.env.Patcher.UnpatchAll()
		i.env.Logger.Warn("start failed, revoked %d hooks: %v", revoked, err)
		i.state = StateError
		i.err = err
		return &Error{Plugin: i.Name(), Op: "start", Err: err}
	}

	i.state = StateActive
	i.err = nil
	i.env.Logger.Info("activated with %d hooks", i.env.Patcher.Len())
	return nil
}

// Deactivate runs the plugin's Stop and then revokes whatever hooks the
// plugin still owns. Deactivating a plugin that is not active is a no-op.
func (i *Instance) Deactivate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateActive {
		return nil
	}

	i.state = StateDeactivating
	stopErr := i.plugin.Stop(ctx, i.env)
	if n := i.env.Patcher.UnpatchAll(); n > 0 {
		i.env.Logger.Debug("revoked %d hooks left after stop", n)
	}
	i.state = StateLoaded

	if stopErr != nil {
		i.env.Logger.Warn("stop failed: %v", stopErr)
		return &Error{Plugin: i.Name(), Op: "stop", Err: stopErr}
	}
	i.env.Logger.Info("deactivated")
	return nil
}

func newInstance(p Plugin, env *Env) *Instance {
	return &Instance{plugin: p, env: env, state: StateLoaded}
}
