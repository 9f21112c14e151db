// Package errors provides coded errors shared by all arena components.
package errors

import "fmt"

// Error carries an error code alongside a human-readable message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // underlying error, if wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

// Unwrap returns the underlying error (for errors.Is and errors.As).
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given error code.
func New(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.Message()}
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an error code.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.Code = code
		return e
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithMessage replaces the error message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// GetCode extracts the error code from any error.
// If the error is not a coded Error, returns InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return InternalServerError
}

// GetError extracts the coded Error from any error, wrapping if needed.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Wrap(err, InternalServerError)
}

// Is checks whether the error carries the given error code.
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
