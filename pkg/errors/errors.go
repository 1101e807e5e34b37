package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(message string) error {
	return goErrors.New(message)
}

// contextError annotates an error with the higher-level operation that caused
// it. The full chain of contexts is included in the error message.
type contextError struct {
	context string
	cause   error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.cause)
}

// WithContext returns a copy of `err` annotated with `context`.
func WithContext(err error, context string) error {
	return contextError{context: context, cause: err}
}

// RootCause returns the innermost error in a chain of context annotations.
// It's useful for checking whether an error is an instance of a specific
// error type.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.cause
	}
}

// FriendlyError is an error whose message is meant to be shown to the user
// directly, without any additional context or stack information.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage returns the message to show the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a new FriendlyError according to the format
// specifier.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}
