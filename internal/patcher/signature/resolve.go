package signature

import (
	"github.com/dshills/patchwork/internal/patcher/host"
)

// Introspectable is anything that lists declared callables in declared order.
// *host.Class implements it.
type Introspectable interface {
	Name() string
	Methods() []*host.Method
}

// Target is a resolved patch target: the owning class and the callable.
// A Target never changes after resolution.
type Target struct {
	class  string
	method *host.Method
}

// NewTarget wraps an already known method, e.g. one looked up by the host.
func NewTarget(class string, m *host.Method) *Target {
	return &Target{class: class, method: m}
}

// Class returns the owning class identifier.
func (t *Target) Class() string {
	return t.class
}

// Method returns the resolved callable.
func (t *Target) Method() *host.Method {
	return t.method
}

// Site returns the call site hooks attach to.
func (t *Target) Site() *host.CallSite {
	return t.method.Site
}

// String renders the target as class.method(params).
func (t *Target) String() string {
	return t.class + "." + t.method.String()
}

// Resolve returns the first callable of c, in declared order, that fits sig.
func Resolve(c Introspectable, sig Signature) (*Target, error) {
	if err := sig.Validate(); err != nil {
		return nil, &ResolveError{Class: c.Name(), Signature: sig, Err: err}
	}
	for _, m := range c.Methods() {
		if sig.Matches(m) {
			return &Target{class: c.Name(), method: m}, nil
		}
	}
	return nil, &ResolveError{Class: c.Name(), Signature: sig, Err: ErrNotFound}
}

// ResolveAll returns every callable of c that fits sig, in declared order.
// More than one result means Resolve's answer depends on declaration order.
func ResolveAll(c Introspectable, sig Signature) []*Target {
	if sig.Validate() != nil {
		return nil
	}
	var out []*Target
	for _, m := range c.Methods() {
		if sig.Matches(m) {
			out = append(out, &Target{class: c.Name(), method: m})
		}
	}
	return out
}
