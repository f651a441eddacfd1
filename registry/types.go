package registry

import (
	"sort"
	"sync"
)

// TypeRegistry tracks the dependency type names known to a runtime. It is an
// explicit instance passed to the Registry by reference; there is no hidden
// process-wide registry.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]struct{}
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]struct{})}
}

// RegisterType marks a dependency type name as known.
func (t *TypeRegistry) RegisterType(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.types[name] = struct{}{}
}

// HasType reports whether the type name is known.
func (t *TypeRegistry) HasType(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.types[name]
	return ok
}

// Types returns the known type names in sorted order.
func (t *TypeRegistry) Types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.types))
	for name := range t.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
