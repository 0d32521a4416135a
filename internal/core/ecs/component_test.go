package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPosition(t *testing.T, w *World, opts ...ComponentOption) Component {
	t.Helper()
	c, err := DefineComponent(w, Schema{"x": Number, "y": Number}, opts...)
	require.NoError(t, err)
	return c
}

func recordUpdates(c Component) *[]UpdateEvent {
	var events []UpdateEvent
	c.Subscribe(func(ev UpdateEvent) { events = append(events, ev) })
	return &events
}

func TestComponent_EmitsChangesInOrder(t *testing.T) {
	w := NewWorld()
	e, err := w.CreateEntity()
	require.NoError(t, err)
	c := newPosition(t, w)
	events := recordUpdates(c)

	require.NoError(t, c.Set(e, Value{"x": 1, "y": 2}))
	require.NoError(t, c.Set(e, Value{"x": 7, "y": 2}))
	require.NoError(t, c.Set(e, Value{"x": 7, "y": 2}))
	c.Remove(e)

	want := [][2]Value{
		{{"x": 1.0, "y": 2.0}, nil},
		{{"x": 7.0, "y": 2.0}, {"x": 1.0, "y": 2.0}},
		{{"x": 7.0, "y": 2.0}, {"x": 7.0, "y": 2.0}},
		{nil, {"x": 7.0, "y": 2.0}},
	}
	require.Len(t, *events, len(want))
	for i, ev := range *events {
		assert.Equal(t, e, ev.Entity, "event %d", i)
		assert.Same(t, c.(*Table), ev.Component.(*Table), "event %d", i)
		assert.Equal(t, want[i], ev.Value, "event %d", i)
	}
}

func TestComponent_RemoveAbsentIsSilent(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	events := recordUpdates(c)

	c.Remove(Entity(42))
	assert.Empty(t, *events)
	assert.False(t, c.Has(42))
}

func TestComponent_SetRejectsSchemaMismatch(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	events := recordUpdates(c)
	e := w.RegisterEntity("a")
	require.NoError(t, c.Set(e, Value{"x": 1, "y": 2}))

	cases := map[string]Value{
		"wrong kind":    {"x": "1", "y": 2},
		"missing field": {"x": 1},
		"unknown field": {"x": 1, "y": 2, "z": 3},
		"nil value":     nil,
	}
	for name, v := range cases {
		err := c.Set(e, v)
		assert.ErrorIs(t, err, ErrSchemaMismatch, name)
	}

	got, ok := c.Get(e)
	require.True(t, ok)
	assert.Equal(t, Value{"x": 1.0, "y": 2.0}, got)
	assert.Len(t, *events, 1)
}

func TestComponent_RegisterInWorld(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w, WithID("Position"), WithMetadata("meta"))

	assert.Equal(t, []Component{c}, w.Components())
	got, ok := w.Component("Position")
	require.True(t, ok)
	assert.Same(t, c.(*Table), got.(*Table))
	assert.Equal(t, "meta", c.Metadata())
	assert.Same(t, w, c.World())

	_, err := DefineComponent(w, Schema{"value": Number}, WithID("Position"))
	assert.ErrorIs(t, err, ErrDuplicateComponentID)
	assert.Len(t, w.Components(), 1)
}

func TestComponent_IndexedIsRegisteredAsIndexer(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w, WithID("Position"), Indexed())

	got, ok := w.Component("Position")
	require.True(t, ok)
	idx, ok := got.(*Indexer)
	require.True(t, ok)
	assert.Same(t, c.(*Indexer), idx)
	assert.Equal(t, []Component{c}, w.Components())

	_, err := DefineComponent(w, Schema{"value": Number}, WithID("Position"), Indexed())
	assert.ErrorIs(t, err, ErrDuplicateComponentID)
}

func TestComponent_GeneratedIDsAreUnique(t *testing.T) {
	w := NewWorld()
	a := newPosition(t, w)
	b := newPosition(t, w)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestComponent_SetGetHasRemove(t *testing.T) {
	w := NewWorld()
	c, err := DefineNumberComponent(w)
	require.NoError(t, err)
	e, err := w.CreateEntity()
	require.NoError(t, err)

	require.NoError(t, c.Set(e, Value{"value": 1}))
	assert.True(t, c.Has(e))
	v, ok := c.Get(e)
	require.True(t, ok)
	assert.Equal(t, 1.0, v["value"])

	c.Remove(e)
	assert.False(t, c.Has(e))
	_, ok = c.Get(e)
	assert.False(t, ok)
	_, err = c.GetStrict(e)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComponent_GetStrict(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	e, err := w.CreateEntity(WithValue(c, Value{"x": 1, "y": 2}))
	require.NoError(t, err)

	v, err := c.GetStrict(e)
	require.NoError(t, err)
	assert.True(t, ValueEquals(v, Value{"x": 1, "y": 2}))
}

func TestComponent_OptionalAndArrayFields(t *testing.T) {
	w := NewWorld()
	c, err := DefineComponent(w, Schema{
		"tags":   OptionalStringArray,
		"target": OptionalEntityRef,
		"path":   EntityRefArray,
		"blob":   OptionalT,
	})
	require.NoError(t, err)
	e := w.RegisterEntity("e")

	require.NoError(t, c.Set(e, Value{"path": []any{1.0, 2.0}}))
	v, ok := c.Get(e)
	require.True(t, ok)
	assert.Equal(t, Value{"path": []Entity{1, 2}}, v)

	require.NoError(t, c.Set(e, Value{"path": []Entity{}, "target": nil}))
	assert.True(t, c.Has(e), "an entity with only absent optionals still holds a value")

	payload := struct{ Name string }{"opaque"}
	require.NoError(t, c.Set(e, Value{"path": []int{3}, "tags": []string{"a"}, "blob": payload}))
	v, _ = c.Get(e)
	assert.Equal(t, []string{"a"}, v["tags"])
	assert.Equal(t, payload, v["blob"])

	assert.ErrorIs(t, c.Set(e, Value{"path": []any{-1}}), ErrSchemaMismatch)
	assert.ErrorIs(t, c.Set(e, Value{"path": "nope"}), ErrSchemaMismatch)
}

func TestComponent_ReturnedValuesDoNotAliasStorage(t *testing.T) {
	w := NewWorld()
	c, err := DefineComponent(w, Schema{"values": NumberArray})
	require.NoError(t, err)
	e := w.RegisterEntity("e")
	require.NoError(t, c.Set(e, Value{"values": []float64{1, 2}}))

	v, _ := c.Get(e)
	v["values"].([]float64)[0] = 99

	again, _ := c.Get(e)
	assert.Equal(t, []float64{1, 2}, again["values"])
}

func TestComponent_EntitiesWithValueScan(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	e1, _ := w.CreateEntity(WithValue(c, Value{"x": 1, "y": 2}))
	_, _ = w.CreateEntity(WithValue(c, Value{"x": 2, "y": 1}))
	_, _ = w.CreateEntity()
	e4, _ := w.CreateEntity(WithValue(c, Value{"x": 1, "y": 2}))

	assert.Equal(t, []Entity{e1, e4}, GetEntitiesWithValue(c, Value{"x": 1, "y": 2}))
	assert.Nil(t, GetEntitiesWithValue(c, Value{"x": 9, "y": 9}))
	assert.Equal(t, 3, c.Len())
}

func TestComponent_UnsubscribeStopsEvents(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	var n int
	sub := c.Subscribe(func(UpdateEvent) { n++ })
	e := w.RegisterEntity("e")

	require.NoError(t, c.Set(e, Value{"x": 1, "y": 1}))
	sub.Cancel()
	require.NoError(t, c.Set(e, Value{"x": 2, "y": 2}))
	assert.Equal(t, 1, n)
}

func TestComponent_HandlerSeesCommittedState(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	e := w.RegisterEntity("e")
	var seen Value
	c.Subscribe(func(ev UpdateEvent) { seen, _ = c.Get(ev.Entity) })

	require.NoError(t, c.Set(e, Value{"x": 3, "y": 4}))
	assert.Equal(t, Value{"x": 3.0, "y": 4.0}, seen)
}

func TestComponent_SetInsideHandlerIsDeliveredAfterCurrentEvent(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w, Indexed())
	a := w.RegisterEntity("a")
	b := w.RegisterEntity("b")

	idOf := func(e Entity) string {
		id, _ := w.EntityID(e)
		return string(id)
	}
	var order []string
	var storedAtOnce, indexedAtOnce bool
	c.Subscribe(func(ev UpdateEvent) {
		order = append(order, "first:"+idOf(ev.Entity))
		if ev.Entity == a {
			require.NoError(t, c.Set(b, Value{"x": 9, "y": 9}))
			storedAtOnce = c.Has(b)
			indexedAtOnce = len(c.EntitiesWithValue(Value{"x": 9, "y": 9})) > 0
		}
	})
	c.Subscribe(func(ev UpdateEvent) {
		order = append(order, "second:"+idOf(ev.Entity))
	})

	require.NoError(t, c.Set(a, Value{"x": 1, "y": 1}))
	assert.True(t, storedAtOnce)
	assert.False(t, indexedAtOnce, "the nested event waits for the current delivery")
	assert.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, order)
	assert.Equal(t, []Entity{b}, c.EntitiesWithValue(Value{"x": 9, "y": 9}))
}

func TestWithValue(t *testing.T) {
	w := NewWorld()
	c := newPosition(t, w)
	cv := WithValue(c, Value{"x": 1, "y": 2})
	assert.Equal(t, ComponentValue{Component: c, Value: Value{"x": 1, "y": 2}}, cv)
}

func TestEntitiesWithAll(t *testing.T) {
	w := NewWorld()
	pos := newPosition(t, w)
	name, err := DefineStringComponent(w)
	require.NoError(t, err)

	both, _ := w.CreateEntity(WithValue(pos, Value{"x": 0, "y": 0}), WithValue(name, Value{"value": "a"}))
	_, _ = w.CreateEntity(WithValue(pos, Value{"x": 1, "y": 0}))

	assert.Equal(t, []Entity{both}, EntitiesWithAll(pos, name))
	assert.Nil(t, EntitiesWithAll())
}
