// Package registry keeps named Units so transports can address them.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/runnable"
)

// Registry manages the available units.
type Registry struct {
	mu    sync.RWMutex
	units map[string]runnable.Runnable
}

// New creates a registry holding units under their own names.
func New(units ...runnable.Runnable) *Registry {
	r := &Registry{units: make(map[string]runnable.Runnable)}
	for _, u := range units {
		r.Register(u.Name(), u)
	}
	return r
}

// Register adds a unit under name.
// If a unit with the same name exists, it is overwritten.
func (r *Registry) Register(name string, u runnable.Runnable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[name] = u
}

// Get looks up a unit by name. An unknown name is a ConfigError.
func (r *Registry) Get(name string) (runnable.Runnable, error) {
	r.mu.RLock()
	u, ok := r.units[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.ConfigError{Unit: name, Field: "unit", Reason: fmt.Sprintf("unit not registered: %s", name)}
	}
	return u, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
