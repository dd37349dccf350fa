package types

import "errors"

var (
	// ErrInvalidConfig is returned when a chunking or search configuration
	// fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound is returned when a requested item does not exist, or when
	// it belongs to another user. The two cases are deliberately
	// indistinguishable so existence never leaks across tenants.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when an embedding's dimensionality
	// does not match the backend's configured collection.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
