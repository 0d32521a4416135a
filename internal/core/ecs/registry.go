package ecs

import (
	"sort"
	"sync"
)

// Registry allocates entity handles and maps them to external ids.
// Handles are allocated monotonically and never reused.
type Registry struct {
	mu   sync.RWMutex
	next Entity
	ids  map[Entity]EntityID
	byID map[EntityID]Entity
}

func NewRegistry() *Registry {
	return &Registry{
		ids:  make(map[Entity]EntityID),
		byID: make(map[EntityID]Entity),
	}
}

// Create allocates a handle bound to id. ok is false when id is already bound,
// in which case the existing handle is returned.
func (r *Registry) Create(id EntityID) (e Entity, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, found := r.byID[id]; found {
		return existing, false
	}
	e = r.next
	r.next++
	r.ids[e] = id
	r.byID[id] = e
	return e, true
}

func (r *Registry) Lookup(id EntityID) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) ID(e Entity) (EntityID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[e]
	return id, ok
}

func (r *Registry) Has(e Entity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[e]
	return ok
}

// Release retires e. The handle is not handed out again.
func (r *Registry) Release(e Entity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[e]
	if !ok {
		return false
	}
	delete(r.ids, e)
	delete(r.byID, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Entities returns the live handles in ascending order.
func (r *Registry) Entities() []Entity {
	r.mu.RLock()
	out := make([]Entity, 0, len(r.ids))
	for e := range r.ids {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sortEntities(out)
	return out
}

func sortEntities(es []Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i] < es[j] })
}
