package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/calendar-scheduler/internal/interval"
	"github.com/example/calendar-scheduler/internal/occurrence"
	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/scheduler"
	"github.com/example/calendar-scheduler/internal/temporal"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a resource with the same identifier exists.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrConflict is returned when a write would overlap existing busy time.
	ErrConflict = errors.New("application: scheduling conflict")
	// ErrConcurrentUpdate is returned when a calendar kept changing across every write attempt.
	ErrConcurrentUpdate = errors.New("application: calendar modified concurrently")
	// ErrResourceLimit is returned when an expansion exceeds its safety limits.
	ErrResourceLimit = errors.New("application: resource limit exceeded")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	return "validation failed: " + strings.Join(sortStrings(fields), ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func fieldError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// ConflictError lists the occurrences of a rejected event and the busy time
// each one overlaps.
type ConflictError struct {
	Conflicts []scheduler.Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %d conflicting occurrence(s)", ErrConflict, len(e.Conflicts))
}

// Is makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// mapCoreError turns engine sentinels into validation or limit errors.
func mapCoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, recurrence.ErrExpansionBoundExceeded):
		return fmt.Errorf("%w: %v", ErrResourceLimit, err)
	case errors.Is(err, temporal.ErrTimeZoneResolutionFailed):
		return fieldError("time_zone", err.Error())
	case errors.Is(err, temporal.ErrAmbiguousOrInvalidLocalTime):
		return fieldError("start", err.Error())
	case errors.Is(err, recurrence.ErrInvalidRecurrenceRule):
		return fieldError("recurrence_rule", err.Error())
	case errors.Is(err, occurrence.ErrInvalidEvent):
		return fieldError("event", err.Error())
	case errors.Is(err, scheduler.ErrInvalidSlotInterval):
		return fieldError("interval", err.Error())
	case errors.Is(err, interval.ErrInvalidInterval):
		return fieldError("window", err.Error())
	}
	return err
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("event", "related records are missing or invalid")
	}
	return err
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
