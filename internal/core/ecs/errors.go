package ecs

import "errors"

var (
	// Writes

	ErrSchemaMismatch = errors.New("value does not match component schema")

	// Reads

	ErrNotFound = errors.New("component value not found")

	// Translation

	ErrDanglingReference = errors.New("entity reference has no external id")

	// Registration

	ErrDuplicateComponentID = errors.New("component id already registered")
	ErrDuplicateEntityID    = errors.New("entity id already registered")
	ErrUnknownFieldType     = errors.New("unknown field type")
)
