package script

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/dshills/patchwork/internal/patcher/host"
)

// TypeIndex maps the type names scripts use to Go types.
type TypeIndex struct {
	types map[string]reflect.Type
}

var basicTypes = []reflect.Type{
	reflect.TypeOf(false),
	reflect.TypeOf(0),
	reflect.TypeOf(int32(0)),
	reflect.TypeOf(int64(0)),
	reflect.TypeOf(float32(0)),
	reflect.TypeOf(float64(0)),
	reflect.TypeOf(""),
}

// NewTypeIndex indexes the basic types plus every parameter and result type
// declared by the classes of cat, keyed by reflect.Type.String.
func NewTypeIndex(cat *host.Catalog) *TypeIndex {
	idx := &TypeIndex{types: make(map[string]reflect.Type)}
	for _, t := range basicTypes {
		idx.add(t)
	}
	if cat == nil {
		return idx
	}
	for _, name := range cat.Names() {
		c, _ := cat.Class(name)
		for _, m := range c.Methods() {
			for _, p := range m.Params {
				idx.add(p)
			}
			if m.Result != nil {
				idx.add(m.Result)
			}
		}
	}
	return idx
}

func (idx *TypeIndex) add(t reflect.Type) {
	idx.types[t.String()] = t
}

// Lookup returns the type named name.
func (idx *TypeIndex) Lookup(name string) (reflect.Type, error) {
	t, ok := idx.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Names returns the indexed type names in sorted order.
func (idx *TypeIndex) Names() []string {
	names := make([]string, 0, len(idx.types))
	for n := range idx.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
