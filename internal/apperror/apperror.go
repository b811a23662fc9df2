// Package apperror defines the domain error kinds shared by every layer.
//
// ERROR KINDS:
//   - ErrNotFound: an id names no entity
//   - ErrReference: a mutation would leave a snippet pointing at a missing category or tag
//   - ErrValidation: bad input (empty name, duplicate label, malformed color)
//   - ErrCorruptState: a persisted file violates a structural invariant
//   - ErrIO: the durable medium failed (read, write, rename)
//
// Callers match kinds with errors.Is and pull out the message with errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrReference    = errors.New("dangling reference")
	ErrValidation   = errors.New("Validation Error")
	ErrCorruptState = errors.New("corrupt state")
	ErrIO           = errors.New("io failure")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying infrastructure error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundByName is NotFound for lookups by a name rather than an id. field
// names the input that carried it.
func NotFoundByName(resource, field, name string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("no %s with %s %q", resource, field, name),
		Field:   field,
	}
}

// Reference reports that resource id does not exist and so cannot be referenced.
// HTTP handlers map this to 422 Unprocessable Entity.
func Reference(resource, id string) *AppError {
	return &AppError{
		Err:     ErrReference,
		Message: fmt.Sprintf("%s %s does not exist", resource, id),
		Field:   resource,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func CorruptState(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrCorruptState,
		Message: "corrupt state: " + message,
		Cause:   cause,
	}
}

// IOFailure wraps an error from the durable medium. op names what was being done
// ("writing snippets.json", "renaming database").
func IOFailure(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrIO,
		Message: op,
		Cause:   cause,
	}
}
