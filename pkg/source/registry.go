package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seastate/oceansync/pkg/config"
	"github.com/seastate/oceansync/pkg/syncerrors"
)

// Factory creates a configured adapter instance from its source block.
type Factory func(cfg config.SourceConfig) (Source, error)

// Registry manages adapter registration and instantiation
type Registry struct {
	sources map[string]Factory
	descs   map[string]string
	mu      sync.RWMutex
}

// Global registry instance; adapter packages register themselves in init().
var globalRegistry = NewRegistry()

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Factory),
		descs:   make(map[string]string),
	}
}

// Register registers an adapter factory under the given name
func (r *Registry) Register(name, description string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return syncerrors.New(syncerrors.ErrorTypeConfig, fmt.Sprintf("source %s already registered", name))
	}
	r.sources[name] = factory
	r.descs[name] = description
	return nil
}

// Create creates an adapter instance for the named source
func (r *Registry) Create(name string, cfg config.SourceConfig) (Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, syncerrors.New(syncerrors.ErrorTypeConfig, fmt.Sprintf("source %s not found", name))
	}
	src, err := factory(cfg)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, fmt.Sprintf("failed to create source %s", name))
	}
	return src, nil
}

// List returns registered source names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the registered description for a source
func (r *Registry) Describe(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descs[name]
}

// Register registers an adapter factory in the global registry
func Register(name, description string, factory Factory) error {
	return globalRegistry.Register(name, description, factory)
}

// Create creates an adapter from the global registry
func Create(name string, cfg config.SourceConfig) (Source, error) {
	return globalRegistry.Create(name, cfg)
}

// List returns the globally registered source names
func List() []string {
	return globalRegistry.List()
}

// Describe returns the description of a globally registered source
func Describe(name string) string {
	return globalRegistry.Describe(name)
}
