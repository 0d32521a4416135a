package ecs

// GetEntitiesWithValue returns the entities of c whose value equals v,
// using the index when c is an *Indexer.
func GetEntitiesWithValue(c Component, v Value) []Entity {
	return c.EntitiesWithValue(v)
}

// HasAll reports whether e holds a value in every given component.
func HasAll(e Entity, components ...Component) bool {
	for _, c := range components {
		if !c.Has(e) {
			return false
		}
	}
	return true
}

// EntitiesWithAll returns the entities holding a value in all components,
// in ascending handle order.
func EntitiesWithAll(components ...Component) []Entity {
	if len(components) == 0 {
		return nil
	}
	smallest := components[0]
	for _, c := range components[1:] {
		if c.Len() < smallest.Len() {
			smallest = c
		}
	}
	var out []Entity
	for _, e := range smallest.Entities() {
		if HasAll(e, components...) {
			out = append(out, e)
		}
	}
	return out
}
