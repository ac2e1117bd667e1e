package host

import (
	"fmt"
	"reflect"
	"strings"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Method describes one declared callable of a Class.
type Method struct {
	// Name is the declared (possibly obfuscated) name.
	Name string

	// Params are the parameter types in declared order.
	Params []reflect.Type

	// Result is the result type, or nil for routines without a value.
	Result reflect.Type

	// Site is where calls to the routine are routed.
	Site *CallSite
}

// Arity returns the number of declared parameters.
func (m *Method) Arity() int {
	return len(m.Params)
}

// String renders the method as name(params) result.
func (m *Method) String() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	if m.Result != nil {
		sb.WriteByte(' ')
		sb.WriteString(m.Result.String())
	}
	return sb.String()
}

// Class is an introspectable host class: an identifier plus its declared
// callables in declared order.
type Class struct {
	name    string
	methods []*Method
}

// Name returns the class identifier.
func (c *Class) Name() string {
	return c.name
}

// Methods returns the declared callables in declared order.
// The returned slice is a copy; the methods themselves are shared.
func (c *Class) Methods() []*Method {
	out := make([]*Method, len(c.methods))
	copy(out, c.methods)
	return out
}

// Method returns the first declared callable with the given name, or nil.
func (c *Class) Method(name string) *Method {
	for _, m := range c.methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// ClassBuilder declares the callables of a Class in order.
type ClassBuilder struct {
	name    string
	methods []*Method
	err     error
}

// NewClass starts declaring a class.
func NewClass(name string) *ClassBuilder {
	return &ClassBuilder{name: name}
}

// Declare adds a callable backed by a Go func.
//
// Parameter types are taken from fn's signature. fn may return nothing, a
// value, an error, or a value and an error; a trailing error is not part of
// the declared result.
func (b *ClassBuilder) Declare(name string, fn any) *ClassBuilder {
	if b.err != nil {
		return b
	}
	m, err := reflectMethod(name, fn)
	if err != nil {
		b.err = fmt.Errorf("declare %s.%s: %w", b.name, name, err)
		return b
	}
	b.methods = append(b.methods, m)
	return b
}

// DeclareFunc adds a callable with explicit types and a raw body.
// It avoids reflection on the call path.
func (b *ClassBuilder) DeclareFunc(name string, params []reflect.Type, result reflect.Type, fn Func) *ClassBuilder {
	if b.err != nil {
		return b
	}
	ps := make([]reflect.Type, len(params))
	copy(ps, params)
	b.methods = append(b.methods, &Method{
		Name:   name,
		Params: ps,
		Result: result,
		Site:   NewCallSite(name, fn),
	})
	return b
}

// Build finishes the class. It fails if any declaration failed.
func (b *ClassBuilder) Build() (*Class, error) {
	if b.err != nil {
		return nil, b.err
	}
	methods := make([]*Method, len(b.methods))
	copy(methods, b.methods)
	return &Class{name: b.name, methods: methods}, nil
}

// MustBuild is like Build but panics on error. Intended for static host
// declarations.
func (b *ClassBuilder) MustBuild() *Class {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// reflectMethod builds a Method whose body calls fn through reflection.
func reflectMethod(name string, fn any) (*Method, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, ErrNotFunc
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic funcs are not supported", ErrNotFunc)
	}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}

	var result reflect.Type
	returnsErr := false
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			returnsErr = true
		} else {
			result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result must be error", ErrNotFunc)
		}
		result = ft.Out(0)
		returnsErr = true
	default:
		return nil, fmt.Errorf("%w: too many results", ErrNotFunc)
	}

	body := func(_ any, args []any) (any, error) {
		in, err := convertArgs(params, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out := fv.Call(in)
		var res any
		if result != nil {
			res = out[0].Interface()
		}
		if returnsErr {
			if e := out[len(out)-1].Interface(); e != nil {
				return res, e.(error)
			}
		}
		return res, nil
	}

	return &Method{
		Name:   name,
		Params: params,
		Result: result,
		Site:   NewCallSite(name, body),
	}, nil
}

// convertArgs maps loosely typed arguments onto declared parameter types.
// nil becomes the zero value of the parameter type.
func convertArgs(params []reflect.Type, args []any) ([]reflect.Value, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrArity, len(args), len(params))
	}
	in := make([]reflect.Value, len(params))
	for i, pt := range params {
		if args[i] == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		v := reflect.ValueOf(args[i])
		switch {
		case v.Type().AssignableTo(pt):
			in[i] = v
		case v.Type().ConvertibleTo(pt) && v.Kind() == pt.Kind():
			in[i] = v.Convert(pt)
		default:
			return nil, fmt.Errorf("%w: argument %d is %s, want %s", ErrArgumentType, i, v.Type(), pt)
		}
	}
	return in, nil
}
