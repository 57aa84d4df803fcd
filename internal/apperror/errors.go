// Package apperror defines the error taxonomy shared by the billing services
// and the HTTP adapter.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery and transport mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindExtraction Kind = "extraction"
	KindTransient  Kind = "transient"
)

// ErrConflict is returned by repositories when a write collides with a
// uniqueness constraint.
var ErrConflict = errors.New("uniqueness conflict")

// Error carries a Kind, a human message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input. Never retried.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced invoice or student that does not exist.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation that could not be recovered.
func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// Extraction reports unusable OCR output or an engine failure.
func Extraction(message string, err error) *Error {
	return &Error{Kind: KindExtraction, Message: message, Err: err}
}

// Transient reports an unreachable database or other I/O failure.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Errors outside
// the taxonomy are treated as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrConflict) {
		return KindConflict
	}
	return KindTransient
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the human message of the first *Error in err's chain.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}
