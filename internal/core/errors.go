package core

import (
	"errors"
	"fmt"
)

// Category sentinels used with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("ledger store failure")
)

// Validation reasons wrapped by ValidationError.
var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyName       = errors.New("empty name")
	ErrNameTooLong     = errors.New("name too long")
	ErrNegativeBudget  = errors.New("negative budget")
	ErrEmptySource     = errors.New("empty source")
	ErrInvalidKind     = errors.New("invalid expense kind")
	ErrOwnerMismatch   = errors.New("owner mismatch")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidPolicy   = errors.New("invalid delete policy")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrMissingOwner    = errors.New("missing owner")
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field string
	Err   error
}

// Invalid builds a ValidationError for field wrapping reason.
func Invalid(field string, reason error) *ValidationError {
	return &ValidationError{Field: field, Err: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %v", e.Err)
	}
	return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing record, or one that belongs to another owner.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a category deletion blocked by dependent expenses.
type ConflictError struct {
	CategoryID string
	Dependents int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("category in use: %q has %d dependent expenses", e.CategoryID, e.Dependents)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StoreError wraps a ledger store failure. The core never retries it.
type StoreError struct {
	Op  string
	Err error
}

// WrapStore wraps err into a StoreError unless it is nil or already part of
// the taxonomy.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }
