package engine

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Factory creates an Engine instance.
type Factory func() Engine

// Registry maps dialect names to engine factories. Build one per program
// with engine/builtin rather than sharing a package-level instance.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Factory)}
}

// Register adds an engine factory under dialect. Dialect names are
// case-insensitive.
func (r *Registry) Register(dialect string, factory Factory) error {
	key := strings.ToLower(dialect)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[key]; exists {
		return fmt.Errorf("engine: dialect %q already registered", dialect)
	}
	r.engines[key] = factory
	return nil
}

// New creates an Engine for the specified dialect.
// Returns an error if the dialect is not registered.
func (r *Registry) New(dialect string) (Engine, error) {
	r.mu.RLock()
	factory, exists := r.engines[strings.ToLower(dialect)]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported database dialect: %s (known: %s)", dialect, strings.Join(r.List(), ", "))
	}
	return factory(), nil
}

// List returns all registered dialect names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dialects := make([]string, 0, len(r.engines))
	for dialect := range r.engines {
		dialects = append(dialects, dialect)
	}
	slices.Sort(dialects)
	return dialects
}

// IsRegistered reports whether a dialect is registered.
func (r *Registry) IsRegistered(dialect string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.engines[strings.ToLower(dialect)]
	return exists
}
