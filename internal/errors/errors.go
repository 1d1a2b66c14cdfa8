package errors

import (
	"errors"
	"fmt"
)

// Common error types for the back office
var (
	// Session errors
	ErrAuthAbsent = errors.New("no valid session")

	// Store errors
	ErrTransientStore = errors.New("transient store error")
	ErrExhaustedRetry = errors.New("retry attempts exhausted")

	// Request errors
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Transient marks err as a transient store failure while keeping the original
// cause in the chain.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation builds a validation error with a client-safe message.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
