package host

import (
	"sync/atomic"
)

// Func is the original body of a patchable routine.
// this is the receiver the host passed to Invoke and may be nil.
type Func func(this any, args []any) (any, error)

// Interceptor takes over calls arriving at a CallSite.
// Implementations run the original body through CallSite.CallOriginal.
type Interceptor interface {
	Intercept(site *CallSite, this any, args []any) (any, error)
}

// binding boxes an Interceptor so it can live behind an atomic pointer.
type binding struct {
	interceptor Interceptor
}

// CallSite is the single entry point the host uses to call a patchable routine.
//
// Thread Safety:
// Invoke is lock-free and safe for concurrent use. Attach and Detach use
// compare-and-swap, so at most one interceptor is ever bound.
type CallSite struct {
	name   string
	fn     Func
	sealed atomic.Bool
	bound  atomic.Pointer[binding]
}

// NewCallSite creates a call site for the given original body.
func NewCallSite(name string, fn Func) *CallSite {
	return &CallSite{name: name, fn: fn}
}

// Name returns the routine name the site was declared with.
func (s *CallSite) Name() string {
	return s.name
}

// Invoke calls the routine, passing through the bound interceptor if any.
func (s *CallSite) Invoke(this any, args ...any) (any, error) {
	if b := s.bound.Load(); b != nil {
		return b.interceptor.Intercept(s, this, args)
	}
	return s.fn(this, args)
}

// CallOriginal runs the original body, bypassing any interceptor.
func (s *CallSite) CallOriginal(this any, args []any) (any, error) {
	return s.fn(this, args)
}

// Attach binds an interceptor to the site.
// Attaching the interceptor that is already bound is a no-op.
func (s *CallSite) Attach(i Interceptor) error {
	if s.sealed.Load() {
		return ErrSealed
	}
	for {
		cur := s.bound.Load()
		if cur != nil {
			if cur.interceptor == i {
				return nil
			}
			return ErrAlreadyAttached
		}
		if s.bound.CompareAndSwap(nil, &binding{interceptor: i}) {
			return nil
		}
	}
}

// Detach unbinds i from the site. It reports whether i was bound.
func (s *CallSite) Detach(i Interceptor) bool {
	cur := s.bound.Load()
	if cur == nil || cur.interceptor != i {
		return false
	}
	return s.bound.CompareAndSwap(cur, nil)
}

// Intercepted reports whether an interceptor is bound.
func (s *CallSite) Intercepted() bool {
	return s.bound.Load() != nil
}

// Seal prevents further interceptors from being attached.
// An interceptor that is already bound stays bound.
func (s *CallSite) Seal() {
	s.sealed.Store(true)
}

// Sealed reports whether the host sealed the site.
func (s *CallSite) Sealed() bool {
	return s.sealed.Load()
}
