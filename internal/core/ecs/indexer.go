package ecs

import (
	"sync"
)

var _ Component = (*Indexer)(nil)

// Indexer wraps a component and maintains a reverse index from value to the
// entities holding it. Writes go straight to the wrapped component; the index
// follows its update stream, so writes made directly on the base component
// are reflected as well.
type Indexer struct {
	Component

	mu       sync.RWMutex
	buckets  map[string]map[Entity]struct{}
	sub      Subscription
	disposed bool
}

// NewIndexer indexes the current contents of base and subscribes to it.
func NewIndexer(base Component) *Indexer {
	idx := &Indexer{
		Component: base,
		buckets:   make(map[string]map[Entity]struct{}),
	}
	for _, e := range base.Entities() {
		if v, ok := base.Get(e); ok {
			idx.add(canonicalKey(v), e)
		}
	}
	idx.sub = base.Subscribe(idx.onUpdate)
	return idx
}

// Base returns the wrapped component.
func (x *Indexer) Base() Component { return x.Component }

func (x *Indexer) onUpdate(ev UpdateEvent) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}
	if prev := ev.Previous(); prev != nil {
		x.removeLocked(canonicalKey(prev), ev.Entity)
	}
	if next := ev.Current(); next != nil {
		x.addLocked(canonicalKey(next), ev.Entity)
	}
}

func (x *Indexer) add(key string, e Entity) {
	x.mu.Lock()
	x.addLocked(key, e)
	x.mu.Unlock()
}

func (x *Indexer) addLocked(key string, e Entity) {
	bucket, ok := x.buckets[key]
	if !ok {
		bucket = make(map[Entity]struct{})
		x.buckets[key] = bucket
	}
	bucket[e] = struct{}{}
}

func (x *Indexer) removeLocked(key string, e Entity) {
	bucket, ok := x.buckets[key]
	if !ok {
		return
	}
	delete(bucket, e)
	if len(bucket) == 0 {
		delete(x.buckets, key)
	}
}

// EntitiesWithValue answers from the index in ascending handle order. After
// Dispose it falls back to scanning the base component.
func (x *Indexer) EntitiesWithValue(v Value) []Entity {
	x.mu.RLock()
	if x.disposed {
		x.mu.RUnlock()
		return x.Component.EntitiesWithValue(v)
	}
	bucket := x.buckets[canonicalKey(v)]
	out := make([]Entity, 0, len(bucket))
	for e := range bucket {
		out = append(out, e)
	}
	x.mu.RUnlock()
	if len(out) == 0 {
		return nil
	}
	sortEntities(out)
	return out
}

// Dispose stops following the base component and drops the index.
func (x *Indexer) Dispose() {
	x.mu.Lock()
	if x.disposed {
		x.mu.Unlock()
		return
	}
	x.disposed = true
	x.buckets = nil
	x.mu.Unlock()
	x.sub.Cancel()
}
