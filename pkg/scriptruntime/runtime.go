package scriptruntime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Runtime is the process-wide namespace of bound script units.
type Runtime struct {
	units map[string]*Unit
	mu    sync.RWMutex
}

// New creates an empty runtime
func New() *Runtime {
	return &Runtime{units: make(map[string]*Unit)}
}

// Bind publishes u under its name, replacing any unit already bound there.
// Calls already running on the replaced unit finish on it.
func (r *Runtime) Bind(u *Unit) {
	r.mu.Lock()
	_, replaced := r.units[u.name]
	r.units[u.name] = u
	r.mu.Unlock()

	log.Debug().Str("callable", u.name).Bool("replaced", replaced).Msg("Script unit bound")
}

// Unbind removes name from the namespace. Unbinding an absent name is a no-op.
func (r *Runtime) Unbind(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.units[name]; !ok {
		return false
	}
	delete(r.units, name)

	log.Debug().Str("callable", name).Msg("Script unit unbound")
	return true
}

// Lookup returns the unit bound under name
func (r *Runtime) Lookup(name string) (*Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[name]
	return u, ok
}

// Introspect returns the ordered parameter names of a bound callable.
func (r *Runtime) Introspect(name string) ([]string, error) {
	u, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
	}

	names := make([]string, len(u.params))
	for i, p := range u.params {
		names[i] = p.Name
	}
	return names, nil
}

// Names returns the bound names, sorted
func (r *Runtime) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
