package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// Factory creates a fresh processor for one node instance.
type Factory func() ports.Processor

// Registry manages the available node types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]Factory),
	}
}

// Register adds a node type to the registry.
// If a type with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = fn
}

// New looks up a node type by name and instantiates it.
func (r *Registry) New(name string) (ports.Processor, error) {
	r.mu.RLock()
	fn, ok := r.types[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrUnknownNodeType)
	}
	return fn(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// Types returns the registered names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
