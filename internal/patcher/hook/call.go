package hook

import (
	"github.com/dshills/patchwork/internal/patcher/signature"
)

// Kind is the kind of a hook.
type Kind int

// Hook kinds.
const (
	// Before runs ahead of the original body.
	Before Kind = iota

	// InsteadOf replaces the original body.
	InsteadOf

	// After runs once a result exists.
	After
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Before:
		return "before"
	case InsteadOf:
		return "instead"
	case After:
		return "after"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Before || k == InsteadOf || k == After
}

// Call is the state of one intercepted call as hooks see it.
type Call struct {
	// Target is the patch target being called.
	Target *signature.Target

	// This is the receiver the host passed, possibly nil.
	This any

	// Args are the call arguments. Before hooks may modify them in place;
	// the original body sees the modified values.
	Args []any

	result any
}

// Result returns the current result. It is nil until the original body or an
// InsteadOf hook has produced one.
func (c *Call) Result() any {
	return c.result
}

// SetResult replaces the current result.
func (c *Call) SetResult(v any) {
	c.result = v
}

// Outcome tells the dispatcher how to continue after a hook returns.
type Outcome struct {
	short bool
	value any
}

// Continue lets the call proceed normally.
func Continue() Outcome {
	return Outcome{}
}

// ShortCircuit ends the call with v.
//
// From a Before hook it skips the original body and every remaining hook.
// From an InsteadOf hook it supplies the result. From an After hook it
// replaces the result and skips the remaining After hooks.
func ShortCircuit(v any) Outcome {
	return Outcome{short: true, value: v}
}

// IsShortCircuit reports whether the outcome ends the call.
func (o Outcome) IsShortCircuit() bool {
	return o.short
}

// Value returns the substitute result of a short-circuit outcome.
func (o Outcome) Value() any {
	return o.value
}

// Callback is the logic of a hook. A returned error ends the call and
// reaches the caller of the call site unchanged.
type Callback func(c *Call) (Outcome, error)

// Replace adapts a function that computes a substitute result. Use it for
// InsteadOf hooks, or for Before hooks that always short-circuit.
func Replace(fn func(c *Call) (any, error)) Callback {
	return func(c *Call) (Outcome, error) {
		v, err := fn(c)
		if err != nil {
			return Outcome{}, err
		}
		return ShortCircuit(v), nil
	}
}

// Observe adapts a function that inspects or edits the call in place and
// always lets it continue.
func Observe(fn func(c *Call) error) Callback {
	return func(c *Call) (Outcome, error) {
		return Continue(), fn(c)
	}
}
