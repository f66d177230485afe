package backend

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned when two seeds share the same id.
var ErrDuplicateID = errors.New("duplicate backend id")

// Registry is the fixed, ordered set of backends known to the balancer.
// Membership never changes after construction.
type Registry struct {
	backends []*Backend
	byID     map[string]*Backend
}

// NewRegistry builds a registry from seeds, preserving their order.
func NewRegistry(seeds []Seed) (*Registry, error) {
	r := &Registry{
		backends: make([]*Backend, 0, len(seeds)),
		byID:     make(map[string]*Backend, len(seeds)),
	}

	for _, s := range seeds {
		if _, exists := r.byID[s.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, s.ID)
		}
		b := New(s)
		r.backends = append(r.backends, b)
		r.byID[s.ID] = b
	}

	return r, nil
}

// All returns every backend in registry order.
func (r *Registry) All() []*Backend {
	out := make([]*Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Healthy returns the backends currently marked healthy, in registry order.
func (r *Registry) Healthy() []*Backend {
	healthy := make([]*Backend, 0, len(r.backends))

	for _, b := range r.backends {
		if b.IsHealthy() {
			healthy = append(healthy, b)
		}
	}

	return healthy
}

// Get returns the backend with the given id.
func (r *Registry) Get(id string) (*Backend, bool) {
	b, ok := r.byID[id]
	return b, ok
}

// Len returns the number of backends.
func (r *Registry) Len() int {
	return len(r.backends)
}
