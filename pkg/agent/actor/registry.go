package actor

import (
	"sort"
	"sync"
)

// Registry keeps the live actors keyed by id.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]*Context
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]*Context)}
}

// Get returns the actor with the given id.
func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.actors[id]
	return c, ok
}

// GetOrCreate returns the actor with the given id, creating it if needed.
func (r *Registry) GetOrCreate(id string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.actors[id]; ok {
		return c
	}
	c := New(id)
	r.actors[id] = c
	return c
}

// Remove closes and forgets the actor. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.actors[id]
	delete(r.actors, id)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// IDs returns the registered actor ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every actor and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	actors := r.actors
	r.actors = make(map[string]*Context)
	r.mu.Unlock()

	for _, c := range actors {
		c.Close()
	}
}
