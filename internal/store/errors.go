package store

import "errors"

var (
	// ErrNotFound is returned when a claim does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with existing data.
	ErrConflict = errors.New("conflict")
)
