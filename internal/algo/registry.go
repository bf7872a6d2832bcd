package algo

import (
	"fmt"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/item"
)

// Registry holds one algorithm per kind and the handle of the active one.
type Registry struct {
	mu     sync.RWMutex
	algos  map[item.Kind]Algorithm
	active item.Kind
}

// NewRegistry registers algos and activates active.
func NewRegistry(active item.Kind, algos ...Algorithm) (*Registry, error) {
	r := &Registry{algos: make(map[item.Kind]Algorithm, len(algos))}
	for _, a := range algos {
		r.algos[a.Kind()] = a
	}
	if err := r.SetActive(active); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the algorithm of kind k.
func (r *Registry) Get(k item.Kind) (Algorithm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algos[k]
	if !ok {
		return nil, fmt.Errorf("algo: %q: %w", k, apperr.ErrNotFound)
	}
	return a, nil
}

// Active returns the algorithm currently governing the store.
func (r *Registry) Active() Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.algos[r.active]
}

// SetActive switches the active handle. It does not touch item payloads;
// that is the migrator's job.
func (r *Registry) SetActive(k item.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.algos[k]; !ok {
		return fmt.Errorf("algo: activate %q: %w", k, apperr.ErrNotFound)
	}
	r.active = k
	return nil
}

// Kinds lists the registered kinds in stable order.
func (r *Registry) Kinds() []item.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []item.Kind
	for _, k := range item.Kinds {
		if _, ok := r.algos[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
