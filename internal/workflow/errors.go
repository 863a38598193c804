package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotAnApprover         = errors.New("no pending approval entry for this approver")
	ErrOutOfTurn             = errors.New("approval step is not active yet")
	ErrClaimAlreadyFinalized = errors.New("claim is already finalized")
	ErrConcurrencyConflict   = errors.New("claim was modified concurrently")
)

// ValidationError names the offending field of a rule or decision.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// OutOfTurnError is returned when an entry outside the active step is decided.
type OutOfTurnError struct {
	ActiveStep int
	EntryStep  int
}

func (e *OutOfTurnError) Error() string {
	return fmt.Sprintf("approval step %d is not active (active step is %d)", e.EntryStep, e.ActiveStep)
}

func (e *OutOfTurnError) Is(target error) bool { return target == ErrOutOfTurn }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
