package signature

import (
	"errors"
	"fmt"
)

// Errors returned by resolution.
var (
	// ErrNotFound is returned when no declared callable fits the signature.
	ErrNotFound = errors.New("no callable matches signature")

	// ErrInvalidSignature is returned for signatures that can never match.
	ErrInvalidSignature = errors.New("invalid signature")
)

// ResolveError describes a failed resolution.
type ResolveError struct {
	Class     string
	Signature Signature
	Err       error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s in %s: %v", e.Signature, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error {
	return e.Err
}
