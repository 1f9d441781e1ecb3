package valuez

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Construction and configuration errors are returned
// synchronously from the offending call; check them with errors.Is.
var (
	// ErrCircular is returned when a virtual is read while it is already
	// being derived further up the call stack.
	ErrCircular = errors.New("circular derivation")

	// ErrDuplicateName is returned when a field, virtual or method name is
	// registered twice.
	ErrDuplicateName = errors.New("name already registered")

	// ErrInvalidName is returned for names that cannot become accessors.
	ErrInvalidName = errors.New("invalid name")

	// ErrSealed is returned when registering on a sealed store.
	ErrSealed = errors.New("store is sealed")

	// ErrCompleted is returned by strict fields and throwing stores after
	// Complete has been called.
	ErrCompleted = errors.New("completed")

	// ErrUnknownName is returned when a name does not resolve to a field,
	// virtual or method.
	ErrUnknownName = errors.New("unknown name")

	// ErrDuplicateValidator is returned when a validator name is re-registered
	// other than with the same tag expression.
	ErrDuplicateValidator = errors.New("validator already registered")

	// ErrInvalidValidator is returned when a filter is neither a function,
	// a registered name nor a *Meta.
	ErrInvalidValidator = errors.New("invalid validator")
)

// StoreError is the payload pushed to a store's error channel. It carries
// enough context to render feedback without catching anything at the call
// site.
type StoreError struct {
	// Store is the name of the store reporting the failure.
	Store string

	// Source is the field, virtual or method that failed.
	Source string

	// Field is set when the failure belongs to a single field.
	Field string

	// Value is the value that was attempted (method arguments for actions).
	Value any

	// Message is a human readable description, e.g. "x must be a integer".
	Message string

	// Diagnostics holds the validation diagnostics for field failures.
	Diagnostics []Diagnostic

	// Err is the underlying error for action and derivation failures.
	Err error
}

// Error implements error.
func (e *StoreError) Error() string {
	if e.Store == "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Store, e.Source, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when a value fails its field's validators and
// the caller asked for errors to be thrown.
type ValidationError struct {
	Field       string
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = e.Field + " " + d.Message
	}
	return strings.Join(msgs, "; ")
}
