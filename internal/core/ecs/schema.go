package ecs

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind is the base kind of a field.
type Kind uint8

const (
	KindNumber Kind = iota
	KindString
	KindBoolean
	KindEntity
	// KindT holds an opaque payload that is stored without validation.
	KindT
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindBoolean:
		return "Boolean"
	case KindEntity:
		return "Entity"
	case KindT:
		return "T"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// FieldType is a base kind optionally marked as an array and/or optional.
type FieldType struct {
	Kind     Kind
	Optional bool
	Array    bool
}

var (
	Number              = FieldType{Kind: KindNumber}
	OptionalNumber      = FieldType{Kind: KindNumber, Optional: true}
	NumberArray         = FieldType{Kind: KindNumber, Array: true}
	OptionalNumberArray = FieldType{Kind: KindNumber, Optional: true, Array: true}

	String              = FieldType{Kind: KindString}
	OptionalString      = FieldType{Kind: KindString, Optional: true}
	StringArray         = FieldType{Kind: KindString, Array: true}
	OptionalStringArray = FieldType{Kind: KindString, Optional: true, Array: true}

	Boolean              = FieldType{Kind: KindBoolean}
	OptionalBoolean      = FieldType{Kind: KindBoolean, Optional: true}
	BooleanArray         = FieldType{Kind: KindBoolean, Array: true}
	OptionalBooleanArray = FieldType{Kind: KindBoolean, Optional: true, Array: true}

	EntityRef              = FieldType{Kind: KindEntity}
	OptionalEntityRef      = FieldType{Kind: KindEntity, Optional: true}
	EntityRefArray         = FieldType{Kind: KindEntity, Array: true}
	OptionalEntityRefArray = FieldType{Kind: KindEntity, Optional: true, Array: true}

	T         = FieldType{Kind: KindT}
	OptionalT = FieldType{Kind: KindT, Optional: true}
)

// String renders the type the way it is written in configuration files,
// e.g. "OptionalStringArray".
func (f FieldType) String() string {
	name := f.Kind.String()
	if f.Array && f.Kind != KindT {
		name += "Array"
	}
	if f.Optional {
		name = "Optional" + name
	}
	return name
}

var fieldTypesByName = func() map[string]FieldType {
	m := make(map[string]FieldType)
	for _, k := range []Kind{KindNumber, KindString, KindBoolean, KindEntity} {
		for _, optional := range []bool{false, true} {
			for _, array := range []bool{false, true} {
				ft := FieldType{Kind: k, Optional: optional, Array: array}
				m[ft.String()] = ft
			}
		}
	}
	m[T.String()] = T
	m[OptionalT.String()] = OptionalT
	return m
}()

// ParseFieldType resolves a type name such as "Number" or "OptionalEntityArray".
func ParseFieldType(name string) (FieldType, error) {
	ft, ok := fieldTypesByName[name]
	if !ok {
		return FieldType{}, fmt.Errorf("%w: %q", ErrUnknownFieldType, name)
	}
	return ft, nil
}

// Schema maps field names to field types.
type Schema map[string]FieldType

// Fields returns the field names in lexical order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports whether v can be stored under this schema.
func (s Schema) Validate(v Value) error {
	_, err := s.normalize(v)
	return err
}

// normalize returns a copy of v converted to the canonical Go representation
// of each field: float64 numbers, Entity references and typed slices.
// Absent optional fields are omitted from the result.
func (s Schema) normalize(v Value) (Value, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrSchemaMismatch)
	}
	for key := range v {
		if _, ok := s[key]; !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrSchemaMismatch, key)
		}
	}

	out := make(Value, len(s))
	for name, ft := range s {
		raw, present := v[name]
		if !present || raw == nil {
			if ft.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: missing field %q", ErrSchemaMismatch, name)
		}
		norm, err := coerceField(ft, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrSchemaMismatch, name, err)
		}
		out[name] = norm
	}
	return out, nil
}

func coerceField(ft FieldType, raw any) (any, error) {
	if ft.Kind == KindT {
		return raw, nil
	}
	if !ft.Array {
		return coerceScalar(ft.Kind, raw)
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected %s, got %T", ft, raw)
	}
	n := rv.Len()
	switch ft.Kind {
	case KindNumber:
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			x, err := coerceScalar(KindNumber, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = x.(float64)
		}
		return out, nil
	case KindString:
		out := make([]string, n)
		for i := 0; i < n; i++ {
			x, err := coerceScalar(KindString, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = x.(string)
		}
		return out, nil
	case KindBoolean:
		out := make([]bool, n)
		for i := 0; i < n; i++ {
			x, err := coerceScalar(KindBoolean, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = x.(bool)
		}
		return out, nil
	case KindEntity:
		out := make([]Entity, n)
		for i := 0; i < n; i++ {
			x, err := coerceScalar(KindEntity, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = x.(Entity)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported kind %s", ft.Kind)
}

func coerceScalar(kind Kind, raw any) (any, error) {
	switch kind {
	case KindNumber:
		if _, isEntity := raw.(Entity); !isEntity {
			if f, ok := toFloat64(raw); ok {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return nil, fmt.Errorf("expected finite %s, got %v", kind, f)
				}
				return f, nil
			}
		}
	case KindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case KindBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case KindEntity:
		if e, ok := raw.(Entity); ok {
			return e, nil
		}
		// untyped integer literals name local handles
		if f, ok := toFloat64(raw); ok && f >= 0 && f <= math.MaxUint32 && f == math.Trunc(f) {
			return Entity(f), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, raw)
}

func toFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case Entity:
		return float64(n), true
	default:
		return 0, false
	}
}
