package todo

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store when no todo has the requested id.
var ErrNotFound = errors.New("todo: not found")

const (
	ErrorCodeBadRequest       = "todo.bad_request"
	ErrorCodeValidationFailed = "todo.validation_failed"
	ErrorCodeNotFound         = "todo.not_found"
	ErrorCodeInternal         = "todo.internal"
)

// AppError is a client-safe error with a stable code.
type AppError struct {
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForErrorCode(code string) int {
	switch code {
	case ErrorCodeBadRequest, ErrorCodeValidationFailed:
		return 400
	case ErrorCodeNotFound:
		return 404
	default:
		return 500
	}
}
