package engine

import (
	"fmt"
	"sort"
	"sync"
)

// ExportRegistry maps exported names to the closures that forward them to
// the controller. Entries are never removed or replaced.
type ExportRegistry struct {
	entries map[string]Callable
	mu      sync.RWMutex
}

// NewExportRegistry returns an empty registry.
func NewExportRegistry() *ExportRegistry {
	return &ExportRegistry{entries: make(map[string]Callable)}
}

// Add registers fn under name, refusing names that are already taken.
func (r *ExportRegistry) Add(name string, fn Callable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("function %q %w", name, ErrAlreadyExists)
	}
	r.entries[name] = fn
	return nil
}

// Lookup returns the forwarding closure for name.
func (r *ExportRegistry) Lookup(name string) (Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.entries[name]
	return fn, ok
}

// Names returns the exported names in sorted order.
func (r *ExportRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
