package job

import (
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/backlog"
)

// Registry maps type tags to factories. It is safe for concurrent use.
// Construct one per engine; there is no package-level registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds tag to f, replacing any previous binding.
func (r *Registry) Register(tag string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = f
}

// RegisterDefinition registers a typed definition under its name.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Name, def)
}

// Get returns the factory for tag.
func (r *Registry) Get(tag string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[tag]
	return f, ok
}

// Decode rebuilds the body of j.
func (r *Registry) Decode(j *Job) (Body, error) {
	f, ok := r.Get(j.TypeTag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", backlog.ErrUnknownType, j.TypeTag)
	}
	b, err := f.Decode(j.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %q payload: %w", j.TypeTag, err)
	}
	return b, nil
}

// Names returns all registered type tags, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
