package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("not available")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrDependency   = errors.New("dependency unavailable")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports active reservations overlapping a requested slot.
type ConflictError struct {
	TableID     string
	Requested   Interval
	Conflicting []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("table %s is not available between %s and %s (conflicts: %s)",
		e.TableID, e.Requested.Start.Format("2006-01-02T15:04Z07:00"), e.Requested.End.Format("2006-01-02T15:04Z07:00"),
		strings.Join(e.Conflicting, ","))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s booking %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type InvalidStateError struct {
	Kind Kind
	ID   string
	From Status
	To   Status
}

func (e *InvalidStateError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("%s booking %s is already %s", e.Kind, e.ID, e.From)
	}
	return fmt.Sprintf("%s booking %s cannot move from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// DependencyError wraps a repository failure. The write it belonged to did
// not happen and may be retried.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool { return target == ErrDependency }

// IsDomain reports whether err is one of the typed booking outcomes rather
// than an infrastructure failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState)
}
