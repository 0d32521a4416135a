package ecs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/recsync/internal/core/events/bus"
)

var _ Component = (*Table)(nil)

// column stores one field for every entity that has it set.
type column struct {
	ftype  FieldType
	values map[Entity]any
}

// Table is the columnar Component implementation. Each schema field is a
// separate column; the holder set is authoritative for Has, so entities whose
// optional fields are all absent still hold a value.
type Table struct {
	id       string
	schema   Schema
	metadata any
	world    *World

	mu      sync.RWMutex
	columns map[string]*column
	holders map[Entity]struct{}

	updates *bus.Stream[UpdateEvent]
}

type componentConfig struct {
	id       string
	metadata any
	indexed  bool
}

type ComponentOption func(*componentConfig)

// WithID sets the component identifier. A random one is used otherwise.
func WithID(id string) ComponentOption {
	return func(c *componentConfig) { c.id = id }
}

func WithMetadata(metadata any) ComponentOption {
	return func(c *componentConfig) { c.metadata = metadata }
}

// Indexed wraps the component in an Indexer.
func Indexed() ComponentOption {
	return func(c *componentConfig) { c.indexed = true }
}

// DefineComponent creates a component with the given schema and registers it
// with w. When Indexed is passed the component, both as returned and as
// registered with w, is an *Indexer over a *Table.
func DefineComponent(w *World, schema Schema, opts ...ComponentOption) (Component, error) {
	cfg := componentConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	var c Component = NewTable(w, cfg.id, schema, cfg.metadata)
	if cfg.indexed {
		c = NewIndexer(c)
	}
	if err := w.RegisterComponent(c); err != nil {
		if idx, ok := c.(*Indexer); ok {
			idx.Dispose()
		}
		return nil, err
	}
	return c, nil
}

// NewTable creates an unregistered component. Most callers want DefineComponent.
func NewTable(w *World, id string, schema Schema, metadata any) *Table {
	t := &Table{
		id:       id,
		schema:   make(Schema, len(schema)),
		metadata: metadata,
		world:    w,
		columns:  make(map[string]*column, len(schema)),
		holders:  make(map[Entity]struct{}),
		updates:  bus.NewStream[UpdateEvent](),
	}
	for name, ft := range schema {
		t.schema[name] = ft
		t.columns[name] = &column{ftype: ft, values: make(map[Entity]any)}
	}
	return t
}

func (t *Table) ID() string     { return t.id }
func (t *Table) Metadata() any  { return t.metadata }
func (t *Table) World() *World  { return t.world }
func (t *Table) String() string { return fmt.Sprintf("Component(%s)", t.id) }

func (t *Table) Schema() Schema {
	out := make(Schema, len(t.schema))
	for k, v := range t.schema {
		out[k] = v
	}
	return out
}

func (t *Table) Set(e Entity, value Value) error {
	norm, err := t.schema.normalize(value)
	if err != nil {
		return fmt.Errorf("set %s on entity %d: %w", t.id, e, err)
	}

	t.mu.Lock()
	prev := t.readLocked(e)
	for name, col := range t.columns {
		if x, ok := norm[name]; ok {
			col.values[e] = x
		} else {
			delete(col.values, e)
		}
	}
	t.holders[e] = struct{}{}
	t.mu.Unlock()

	t.updates.Publish(UpdateEvent{
		Entity:    e,
		Component: t,
		Value:     [2]Value{cloneValue(norm), prev},
	})
	return nil
}

func (t *Table) Remove(e Entity) {
	t.mu.Lock()
	if _, ok := t.holders[e]; !ok {
		t.mu.Unlock()
		return
	}
	prev := t.readLocked(e)
	for _, col := range t.columns {
		delete(col.values, e)
	}
	delete(t.holders, e)
	t.mu.Unlock()

	t.updates.Publish(UpdateEvent{
		Entity:    e,
		Component: t,
		Value:     [2]Value{nil, prev},
	})
}

func (t *Table) Get(e Entity) (Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := t.readLocked(e)
	return v, v != nil
}

func (t *Table) GetStrict(e Entity) (Value, error) {
	v, ok := t.Get(e)
	if !ok {
		return nil, fmt.Errorf("%w: component %s entity %d", ErrNotFound, t.id, e)
	}
	return v, nil
}

func (t *Table) Has(e Entity) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.holders[e]
	return ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.holders)
}

func (t *Table) Entities() []Entity {
	t.mu.RLock()
	out := make([]Entity, 0, len(t.holders))
	for e := range t.holders {
		out = append(out, e)
	}
	t.mu.RUnlock()
	sortEntities(out)
	return out
}

func (t *Table) EntitiesWithValue(v Value) []Entity {
	var out []Entity
	for _, e := range t.Entities() {
		if current, ok := t.Get(e); ok && ValueEquals(current, v) {
			out = append(out, e)
		}
	}
	return out
}

func (t *Table) Subscribe(handler func(UpdateEvent)) Subscription {
	return t.updates.Subscribe(handler)
}

func (t *Table) UpdateMetrics() bus.Metrics { return t.updates.Metrics() }

// readLocked assembles the value of e from its columns. Caller holds t.mu.
func (t *Table) readLocked(e Entity) Value {
	if _, ok := t.holders[e]; !ok {
		return nil
	}
	v := make(Value, len(t.columns))
	for name, col := range t.columns {
		if x, ok := col.values[e]; ok {
			v[name] = cloneField(x)
		}
	}
	return v
}
