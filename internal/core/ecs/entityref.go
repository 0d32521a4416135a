package ecs

import (
	"fmt"
	"reflect"
)

// ExportValue returns a copy of v with every entity reference replaced by the
// external id of the referenced entity. Handles are only meaningful inside
// the world that allocated them; external ids are what crosses the wire.
func (w *World) ExportValue(schema Schema, v Value) (Value, error) {
	out := make(Value, len(v))
	for name, raw := range v {
		ft, ok := schema[name]
		if !ok || ft.Kind != KindEntity || raw == nil {
			out[name] = raw
			continue
		}
		if !ft.Array {
			e, ok := raw.(Entity)
			if !ok {
				return nil, fmt.Errorf("%w: field %q: expected Entity, got %T", ErrSchemaMismatch, name, raw)
			}
			id, ok := w.EntityID(e)
			if !ok {
				return nil, fmt.Errorf("%w: field %q references entity %d", ErrDanglingReference, name, e)
			}
			out[name] = string(id)
			continue
		}
		es, ok := raw.([]Entity)
		if !ok {
			return nil, fmt.Errorf("%w: field %q: expected []Entity, got %T", ErrSchemaMismatch, name, raw)
		}
		ids := make([]string, len(es))
		for i, e := range es {
			id, ok := w.EntityID(e)
			if !ok {
				return nil, fmt.Errorf("%w: field %q element %d references entity %d", ErrDanglingReference, name, i, e)
			}
			ids[i] = string(id)
		}
		out[name] = ids
	}
	return out, nil
}

// ImportValue is the inverse of ExportValue. Entity fields must hold external
// ids, which are registered in w on first sight. The value is validated
// against schema before any id is registered, so a rejected value leaves the
// registry untouched.
func (w *World) ImportValue(schema Schema, v Value) (Value, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrSchemaMismatch)
	}
	placeholder := func(EntityID) Entity { return 0 }
	checked, err := importRefs(schema, v, placeholder)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(checked); err != nil {
		return nil, err
	}
	return importRefs(schema, v, w.RegisterEntity)
}

func importRefs(schema Schema, v Value, resolve func(EntityID) Entity) (Value, error) {
	out := make(Value, len(v))
	for name, raw := range v {
		ft, ok := schema[name]
		if !ok || ft.Kind != KindEntity || raw == nil {
			out[name] = raw
			continue
		}
		if !ft.Array {
			id, ok := toEntityID(raw)
			if !ok {
				return nil, fmt.Errorf("%w: field %q: expected entity id, got %T", ErrSchemaMismatch, name, raw)
			}
			out[name] = resolve(id)
			continue
		}
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("%w: field %q: expected entity id list, got %T", ErrSchemaMismatch, name, raw)
		}
		es := make([]Entity, rv.Len())
		for i := range es {
			id, ok := toEntityID(rv.Index(i).Interface())
			if !ok {
				return nil, fmt.Errorf("%w: field %q element %d: expected entity id, got %T", ErrSchemaMismatch, name, i, rv.Index(i).Interface())
			}
			es[i] = resolve(id)
		}
		out[name] = es
	}
	return out, nil
}

func toEntityID(raw any) (EntityID, bool) {
	switch id := raw.(type) {
	case EntityID:
		return id, id != ""
	case string:
		return EntityID(id), id != ""
	default:
		return "", false
	}
}
