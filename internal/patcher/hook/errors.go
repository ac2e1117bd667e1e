package hook

import (
	"errors"
	"fmt"

	"github.com/dshills/patchwork/internal/patcher/signature"
)

// Errors returned by the registry.
var (
	// ErrNilTarget is returned when installing on a nil target.
	ErrNilTarget = errors.New("patch target is nil")

	// ErrNilCallback is returned when installing a nil callback.
	ErrNilCallback = errors.New("hook callback is nil")

	// ErrInvalidKind is returned for an unknown hook kind.
	ErrInvalidKind = errors.New("invalid hook kind")
)

// InstallError reports a target that could not be intercepted.
type InstallError struct {
	Target *signature.Target
	Err    error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	return fmt.Sprintf("install hook on %s: %v", e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstallError) Unwrap() error {
	return e.Err
}
