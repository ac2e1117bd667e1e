package host

import (
	"fmt"
	"slices"
	"sync"
)

// Catalog is the set of classes a host exposes, keyed by identifier.
type Catalog struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewCatalog creates a catalog holding classes.
func NewCatalog(classes ...*Class) (*Catalog, error) {
	c := &Catalog{classes: make(map[string]*Class, len(classes))}
	for _, cl := range classes {
		if err := c.Add(cl); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a class.
func (c *Catalog) Add(cl *Class) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.classes[cl.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, cl.Name())
	}
	c.classes[cl.Name()] = cl
	return nil
}

// Class returns the class with the given identifier.
func (c *Catalog) Class(name string) (*Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.classes[name]
	return cl, ok
}

// Names returns the class identifiers in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.classes))
	for name := range c.classes {
		names = append(names, name)
	}
	c.mu.RUnlock()
	slices.Sort(names)
	return names
}
