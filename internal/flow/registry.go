package flow

import (
	"sort"
	"sync"

	"flowbridge/internal/errors"
)

// Factory builds a fresh instance of a registered class.
type Factory func() any

// Registry maps class names to factories.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{m: map[string]Factory{}} }

// Default is the registry used by contexts built without WithClasses.
var Default = NewRegistry()

// RegisterClass registers a class in Default.
func RegisterClass(class string, f Factory) { Default.Register(class, f) }

// Register binds class to f, replacing any previous binding.
func (r *Registry) Register(class string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[class] = f
}

// New instantiates class, or fails with ClassLoadError.
func (r *Registry) New(class string) (any, error) {
	r.mu.RLock()
	f, ok := r.m[class]
	r.mu.RUnlock()
	if !ok {
		return nil, &errors.ClassLoadError{Class: class}
	}
	return f(), nil
}

// Classes returns the registered names, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
