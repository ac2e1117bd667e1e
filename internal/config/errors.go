package config

import (
	"errors"
	"fmt"
)

// Errors returned by settings operations.
var (
	// ErrSettingNotFound indicates the key has no value.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrTypeMismatch indicates the stored value has a different type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidKey indicates an empty or malformed key.
	ErrInvalidKey = errors.New("invalid setting key")

	// ErrClosed indicates the store was closed.
	ErrClosed = errors.New("settings store is closed")

	// ErrNotPersistent indicates a file operation on an in-memory store.
	ErrNotPersistent = errors.New("settings store has no backing file")
)

// TypeError is returned when a stored value cannot be read as the
// requested type.
type TypeError struct {
	Key      string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error for %s: expected %s, got %s", e.Key, e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case int, int64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case []any:
		return "[]any"
	default:
		return fmt.Sprintf("%T", v)
	}
}
