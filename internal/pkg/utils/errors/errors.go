// Package errors extends the standard "errors" package with stack traces, wrapping and multi-errors.
//
// Stack traces are captured by github.com/pkg/errors, all other helpers are compatible with the standard library,
// so errors.Is and errors.As work across the whole error chain.
package errors

import (
	"errors"
	"fmt"

	pkgErrors "github.com/pkg/errors"
)

type StackTrace = pkgErrors.StackTrace

type stackTracer interface {
	StackTrace() StackTrace
}

// withStack wraps an error and remembers the stack trace of the creation point.
type withStack struct {
	error
	trace StackTrace
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

// wrappedError has its own message and wraps the original error.
type wrappedError struct {
	msg   string
	cause error
	trace StackTrace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.cause
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func New(msg string) error {
	return &withStack{error: errors.New(msg), trace: callers()}
}

// Errorf supports the %w verb, the result can be unwrapped.
func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()}
}

// Wrap returns an error with the new message, the original error is accessible by Unwrap.
func Wrap(err error, msg string) error {
	return &wrappedError{msg: msg, cause: err, trace: callers()}
}

func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), cause: err, trace: callers()}
}

// WithStack adds the stack trace to the error, if it is not already present.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if As(err, &tracer) {
		return err
	}
	return &withStack{error: err, trace: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func callers() StackTrace {
	// Skip the callers() and the constructor frames.
	return pkgErrors.New("").(stackTracer).StackTrace()[2:] // nolint: errorlint, forcetypeassert
}
