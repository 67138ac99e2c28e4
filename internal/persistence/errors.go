package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a write breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrVersionConflict is returned when a compare-and-swap write observes a
	// calendar version other than the one it expected.
	ErrVersionConflict = errors.New("persistence: version conflict")
	// ErrBusy is returned when the store stays locked past its retry budget.
	ErrBusy = errors.New("persistence: store busy")
)
