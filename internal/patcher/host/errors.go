package host

import "errors"

// Errors returned by call sites and class declarations.
var (
	// ErrSealed is returned when attaching to a call site the host has sealed.
	ErrSealed = errors.New("call site is sealed")

	// ErrAlreadyAttached is returned when a call site already carries a
	// different interceptor.
	ErrAlreadyAttached = errors.New("call site already has an interceptor")

	// ErrArity is returned when a call supplies the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")

	// ErrArgumentType is returned when an argument is not assignable to the
	// declared parameter type.
	ErrArgumentType = errors.New("argument type mismatch")

	// ErrNotFunc is returned when Declare is given something other than a func.
	ErrNotFunc = errors.New("declared callable is not a func")

	// ErrDuplicateClass is returned when a catalog already holds a class
	// with the same identifier.
	ErrDuplicateClass = errors.New("duplicate class")
)
