package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when no plugin has the given name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyLoaded is returned when loading a plugin name twice.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrNotLoaded is returned when activating a plugin that is not in the
	// loaded state.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrInvalidPlugin is returned for a nil plugin or one without a name.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// Error records which lifecycle step of which plugin failed.
type Error struct {
	Plugin string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
