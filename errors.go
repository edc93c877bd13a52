package todostack

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDeclaration is matched by every DeclarationError.
	ErrInvalidDeclaration = errors.New("todostack: invalid declaration")

	// ErrUndefinedTable is returned when a stage receives a Table that DefineTable did not produce.
	ErrUndefinedTable = errors.New("todostack: table is not defined")

	// ErrUndefinedComputeUnit is returned when a stage receives a ComputeUnit that DefineComputeUnit did not produce.
	ErrUndefinedComputeUnit = errors.New("todostack: compute unit is not defined")

	// ErrGrantMismatch is returned when a grant or compute unit was declared against a different table or unit.
	ErrGrantMismatch = errors.New("todostack: access grant does not match the compute unit and table")

	// ErrNilBackend is returned by Provision when no backend is supplied.
	ErrNilBackend = errors.New("todostack: provisioning backend is nil")
)

// DeclarationError reports a missing or invalid declared attribute.
type DeclarationError struct {
	Field   string
	Message string
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("todostack: %s: %s", e.Field, e.Message)
}

func (e *DeclarationError) Unwrap() error {
	return ErrInvalidDeclaration
}

func invalid(field, format string, args ...any) error {
	return &DeclarationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BackendError wraps a failure reported by a provisioning backend. The cause is
// preserved verbatim for the operator.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("todostack: backend %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
