package ecs

// Frequently used component shapes. Each definer forwards its options to
// DefineComponent, so callers pick the id and indexing.

func DefineBoolComponent(w *World, opts ...ComponentOption) (Component, error) {
	return DefineComponent(w, Schema{"value": Boolean}, opts...)
}

func DefineNumberComponent(w *World, opts ...ComponentOption) (Component, error) {
	return DefineComponent(w, Schema{"value": Number}, opts...)
}

func DefineStringComponent(w *World, opts ...ComponentOption) (Component, error) {
	return DefineComponent(w, Schema{"value": String}, opts...)
}

func DefineCoordComponent(w *World, opts ...ComponentOption) (Component, error) {
	return DefineComponent(w, Schema{"x": Number, "y": Number}, opts...)
}

// ActionSchema describes a pending or executed user action.
var ActionSchema = Schema{
	"state":       Number,
	"on":          OptionalEntityRef,
	"metadata":    OptionalT,
	"overrides":   OptionalStringArray,
	"txHash":      OptionalString,
	"description": String,
	"action":      OptionalString,
	"params":      OptionalEntityRefArray,
	"time":        Number,
}

// DefineActionComponent defines the action component under the id "Action"
// unless WithID overrides it.
func DefineActionComponent(w *World, opts ...ComponentOption) (Component, error) {
	return DefineComponent(w, ActionSchema, append([]ComponentOption{WithID("Action")}, opts...)...)
}
