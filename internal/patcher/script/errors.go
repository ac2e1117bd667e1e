package script

import "errors"

// Errors returned by the script runtime.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a script or hook runs too long.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrUnknownType is returned for a type name no catalog class uses.
	ErrUnknownType = errors.New("unknown type")

	// ErrConversion is returned when a Lua value cannot become a Go value of
	// the required type.
	ErrConversion = errors.New("cannot convert lua value")

	// ErrInvalidPatch is returned for a malformed patch declaration.
	ErrInvalidPatch = errors.New("invalid patch declaration")
)
