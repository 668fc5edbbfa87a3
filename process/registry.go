package process

import (
	"sort"
	"sync"

	"github.com/kbukum/capsule/errors"
)

// Factory creates a fresh process instance.
type Factory func() (Process, error)

// Registry maps definition strings to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(definition string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[definition] = f
}

// Has reports whether a definition is registered.
func (r *Registry) Has(definition string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[definition]
	return ok
}

// New instantiates a registered definition.
func (r *Registry) New(definition string) (Process, error) {
	r.mu.RLock()
	f, ok := r.factories[definition]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("process definition", definition)
	}
	return f()
}

// Definitions returns sorted registered definitions.
func (r *Registry) Definitions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry; builtins register into it.
var Default = NewRegistry()

// Register adds a factory to the Default registry.
func Register(definition string, f Factory) { Default.Register(definition, f) }

// New instantiates a definition from the Default registry.
func New(definition string) (Process, error) { return Default.New(definition) }

// Definitions lists the Default registry.
func Definitions() []string { return Default.Definitions() }
