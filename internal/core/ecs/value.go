package ecs

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
)

// ValueEquals compares two values structurally over the union of their keys.
// Numbers compare by numeric value regardless of Go type, and a nil field is
// the same as a missing one. Two nil values are equal.
func ValueEquals(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(plain(a), plain(b))
}

// plain converts v into a form where structurally equal values are
// reflect.DeepEqual: numbers become float64, slices become []any and
// nil map entries are dropped.
func plain(v any) any {
	if v == nil {
		return nil
	}
	if f, ok := toFloat64(v); ok {
		return f
	}
	switch x := v.(type) {
	case string, bool:
		return x
	case Value:
		return plainMap(x)
	case map[string]any:
		return plainMap(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if elem := plain(iter.Value().Interface()); elem != nil {
				m[iter.Key().String()] = elem
			}
		}
		return m
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return plain(rv.Elem().Interface())
	}
	return v
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if p := plain(v); p != nil {
			out[k] = p
		}
	}
	return out
}

// canonicalKey returns a string that is identical for any two values for
// which ValueEquals holds. go-json sorts map keys, which makes the encoding
// independent of insertion order.
func canonicalKey(v Value) string {
	p := plain(v)
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%#v", p)
	}
	return string(b)
}

// cloneValue copies v and its slice fields so callers cannot alias storage.
func cloneValue(v Value) Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, x := range v {
		out[k] = cloneField(x)
	}
	return out
}

func cloneField(x any) any {
	switch s := x.(type) {
	case []float64:
		return append([]float64(nil), s...)
	case []string:
		return append([]string(nil), s...)
	case []bool:
		return append([]bool(nil), s...)
	case []Entity:
		return append([]Entity(nil), s...)
	default:
		return x
	}
}
