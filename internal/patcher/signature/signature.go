// Package signature resolves host callables by structural shape instead of by
// name.
//
// Host builds may rename (obfuscate) their internal routines, but the types a
// routine accepts usually survive. A Signature pins the expected arity and the
// parameter types at a subset of positions; Resolve scans a class's declared
// callables in declared order and returns the first one that fits.
//
// When several callables fit, the first in declared order wins. Declaration
// order is a property of the host build, so an ambiguous signature may pick a
// different routine after a host update. ResolveAll exposes every match for
// diagnostics.
package signature

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dshills/patchwork/internal/patcher/host"
)

// Constraint pins the parameter type at one position.
// A nil Type leaves the position unconstrained.
type Constraint struct {
	Position int
	Type     reflect.Type
}

// TypeOf returns the reflect.Type of T, for building constraints.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// At returns a constraint for position pos.
func At(pos int, t reflect.Type) Constraint {
	return Constraint{Position: pos, Type: t}
}

// Signature is a structural search key. It is never persisted.
type Signature struct {
	// Name optionally pins the callable name. Empty matches any name.
	Name string

	// Arity is the exact number of parameters a candidate must declare.
	Arity int

	// Params constrain individual positions; unlisted positions are ignored.
	Params []Constraint

	// Result optionally constrains the result type.
	Result reflect.Type
}

// New builds a signature of the given arity.
func New(arity int, constraints ...Constraint) Signature {
	cs := make([]Constraint, len(constraints))
	copy(cs, constraints)
	return Signature{Arity: arity, Params: cs}
}

// ByName builds a signature that pins the name and every parameter type.
// Use it for routines whose names are stable across host builds.
func ByName(name string, params ...reflect.Type) Signature {
	cs := make([]Constraint, len(params))
	for i, p := range params {
		cs[i] = At(i, p)
	}
	return Signature{Name: name, Arity: len(params), Params: cs}
}

// Returning returns a copy of s that also constrains the result type.
func (s Signature) Returning(t reflect.Type) Signature {
	s.Params = append([]Constraint(nil), s.Params...)
	s.Result = t
	return s
}

// Validate checks that every constraint refers to a position inside the arity
// and that no position is constrained twice.
func (s Signature) Validate() error {
	if s.Arity < 0 {
		return fmt.Errorf("%w: negative arity %d", ErrInvalidSignature, s.Arity)
	}
	seen := make(map[int]bool, len(s.Params))
	for _, c := range s.Params {
		if c.Position < 0 || c.Position >= s.Arity {
			return fmt.Errorf("%w: position %d outside arity %d", ErrInvalidSignature, c.Position, s.Arity)
		}
		if seen[c.Position] {
			return fmt.Errorf("%w: position %d constrained twice", ErrInvalidSignature, c.Position)
		}
		seen[c.Position] = true
	}
	return nil
}

// Matches reports whether m fits the signature.
func (s Signature) Matches(m *host.Method) bool {
	if m == nil || len(m.Params) != s.Arity {
		return false
	}
	if s.Name != "" && m.Name != s.Name {
		return false
	}
	for _, c := range s.Params {
		if c.Type == nil {
			continue
		}
		if m.Params[c.Position] != c.Type {
			return false
		}
	}
	if s.Result != nil && m.Result != s.Result {
		return false
	}
	return true
}

// String renders the signature with _ for unconstrained positions,
// e.g. "?(*hostapp.RotationOptions, *hostapp.ResizeOptions, _, int)".
func (s Signature) String() string {
	slots := make([]string, s.Arity)
	for i := range slots {
		slots[i] = "_"
	}
	for _, c := range s.Params {
		if c.Type != nil && c.Position >= 0 && c.Position < s.Arity {
			slots[c.Position] = c.Type.String()
		}
	}
	name := s.Name
	if name == "" {
		name = "?"
	}
	out := name + "(" + strings.Join(slots, ", ") + ")"
	if s.Result != nil {
		out += " " + s.Result.String()
	}
	return out
}
