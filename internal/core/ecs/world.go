package ecs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/recsync/internal/core/observability/log"
)

// World owns an entity registry and an ordered set of components.
type World struct {
	registry *Registry
	logger   log.Log

	mu         sync.RWMutex
	components []Component
	byID       map[string]Component
}

type WorldOption func(*World)

func WithLogger(logger log.Log) WorldOption {
	return func(w *World) { w.logger = logger }
}

func NewWorld(opts ...WorldOption) *World {
	w := &World{
		registry: NewRegistry(),
		logger:   log.Nop(),
		byID:     make(map[string]Component),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Registry() *Registry { return w.registry }

// RegisterComponent appends c to the world. Identifiers must be unique.
func (w *World) RegisterComponent(c Component) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.byID[c.ID()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateComponentID, c.ID())
	}
	w.components = append(w.components, c)
	w.byID[c.ID()] = c
	w.logger.Debug("component registered",
		log.String("component", c.ID()),
		log.Strings("fields", c.Schema().Fields()),
		log.Bool("indexed", isIndexed(c)),
	)
	return nil
}

// Components returns the registered components in registration order.
func (w *World) Components() []Component {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Component(nil), w.components...)
}

func (w *World) Component(id string) (Component, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.byID[id]
	return c, ok
}

// CreateEntity allocates an entity with a random external id and sets the
// given values in order. All values are validated before anything is
// allocated, so a schema error leaves the world untouched.
func (w *World) CreateEntity(values ...ComponentValue) (Entity, error) {
	return w.CreateEntityWithID(EntityID(uuid.NewString()), values...)
}

func (w *World) CreateEntityWithID(id EntityID, values ...ComponentValue) (Entity, error) {
	for _, cv := range values {
		if err := cv.Component.Schema().Validate(cv.Value); err != nil {
			return 0, fmt.Errorf("component %q: %w", cv.Component.ID(), err)
		}
	}
	if _, exists := w.registry.Lookup(id); exists {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateEntityID, id)
	}
	e, _ := w.registry.Create(id)
	for _, cv := range values {
		if err := cv.Component.Set(e, cv.Value); err != nil {
			return e, fmt.Errorf("component %q: %w", cv.Component.ID(), err)
		}
	}
	return e, nil
}

// RegisterEntity returns the handle bound to id, allocating one if needed.
func (w *World) RegisterEntity(id EntityID) Entity {
	e, _ := w.registry.Create(id)
	return e
}

func (w *World) EntityIndex(id EntityID) (Entity, bool) {
	return w.registry.Lookup(id)
}

func (w *World) EntityID(e Entity) (EntityID, bool) {
	return w.registry.ID(e)
}

func (w *World) HasEntity(e Entity) bool {
	return w.registry.Has(e)
}

func (w *World) Entities() []Entity {
	return w.registry.Entities()
}

// RemoveEntity removes every value of e, in component registration order,
// and retires the handle.
func (w *World) RemoveEntity(e Entity) {
	for _, c := range w.Components() {
		c.Remove(e)
	}
	if w.registry.Release(e) {
		w.logger.Debug("entity removed", log.Uint32("entity", uint32(e)))
	}
}

func isIndexed(c Component) bool {
	_, ok := c.(*Indexer)
	return ok
}
