package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the taskprocessor library

var (
	// ErrClosed indicates that an operation was attempted on a stopped component
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation exceeded its time budget
	ErrTimeout = errors.New("operation timed out")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidParameter indicates a task parameter is missing or has the wrong kind
	ErrInvalidParameter = errors.New("invalid task parameter")

	// ErrUnknownType indicates a task type with no registered capability
	ErrUnknownType = errors.New("unknown task type")

	// ErrAlreadyRunning indicates Start was called on a running component
	ErrAlreadyRunning = errors.New("already running")
)

// ValidationError describes a rejected configuration value or task parameter.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string

	// Kind is the sentinel the error unwraps to. Defaults to ErrInvalidConfiguration.
	Kind error
}

// NewValidationError creates a configuration ValidationError.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// NewParameterError creates a ValidationError for a task parameter.
func NewParameterError(module, field string, value interface{}, reason string) *ValidationError {
	verr := NewValidationError(module, field, value, reason)
	verr.Kind = ErrInvalidParameter
	return verr
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrInvalidConfiguration
}

// OperationError wraps a runtime failure with the module and operation it came from.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches additional context and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
