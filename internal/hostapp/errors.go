package hostapp

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResult is returned when a patched routine produces a value of
// the wrong type.
var ErrUnexpectedResult = errors.New("unexpected result type")

func resultAs[T any](routine string, v any) (T, error) {
	r, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w: %T", routine, ErrUnexpectedResult, v)
	}
	return r, nil
}
