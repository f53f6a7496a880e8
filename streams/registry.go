package streams

import (
	"github.com/pkg/errors"
	"sort"
	"strings"
)

// Registry maps a service name to its adapter. It is filled once at startup and
// read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		r.adapters[adapter.Name()] = adapter
	}
	return r
}

// Get is case-insensitive.
func (r *Registry) Get(service string) (Adapter, error) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(service))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownService, "%q", service)
	}
	return adapter, nil
}

// Names returns registered service names in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) All() []Adapter {
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, name := range r.Names() {
		adapters = append(adapters, r.adapters[name])
	}
	return adapters
}
