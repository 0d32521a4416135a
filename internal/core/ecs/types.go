package ecs

import (
	"github.com/zeusync/recsync/internal/core/events/bus"
)

// Entity is an opaque handle allocated by a World's registry.
type Entity uint32

// EntityID is the external, network level identifier of an entity.
type EntityID string

// Value is a record of field name to field value. A nil Value means absent.
type Value map[string]any

// UpdateEvent describes one mutation of a component. Value[0] is the new
// value and Value[1] the previous one; either is nil when absent.
type UpdateEvent struct {
	Entity    Entity
	Component Component
	Value     [2]Value
}

func (e UpdateEvent) Current() Value  { return e.Value[0] }
func (e UpdateEvent) Previous() Value { return e.Value[1] }

// Subscription cancels an update subscription.
type Subscription = bus.Subscription

// Component is a named, schema-typed mapping from entities to values that
// publishes an UpdateEvent for every mutation.
type Component interface {
	ID() string
	Schema() Schema
	Metadata() any
	World() *World

	// Set validates value against the schema and stores it. Nothing is
	// stored and no event is published when validation fails.
	// Called from inside an update handler, or while another goroutine is
	// delivering, Set stores the value at once but its event is queued and
	// reaches subscribers, an Indexer included, only after the current
	// delivery finishes.
	Set(e Entity, value Value) error
	// Remove deletes the value of e. Removing an absent value is a no-op.
	Remove(e Entity)

	Get(e Entity) (Value, bool)
	GetStrict(e Entity) (Value, error)
	Has(e Entity) bool

	// Entities returns the holders of a value in ascending handle order.
	Entities() []Entity
	// EntitiesWithValue returns the holders whose value equals v.
	EntitiesWithValue(v Value) []Entity
	Len() int

	Subscribe(handler func(UpdateEvent)) Subscription
	// UpdateMetrics counts the update events published so far.
	UpdateMetrics() bus.Metrics
}

// ComponentValue pairs a component with a value for CreateEntity.
type ComponentValue struct {
	Component Component
	Value     Value
}

func WithValue(c Component, v Value) ComponentValue {
	return ComponentValue{Component: c, Value: v}
}
