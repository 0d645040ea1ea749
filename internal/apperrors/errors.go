// Package apperrors carries the error kinds the booking and payment engines
// return. Callers match on kind with errors.Is against the sentinels or with
// KindOf, never on message text.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindCapacityExceeded
	KindResourceUnavailable
	KindInvalidState
	KindInvalidAmount
	KindInvalidInput
	KindProcessorError
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindResourceUnavailable:
		return "resource_unavailable"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInvalidInput:
		return "invalid_input"
	case KindProcessorError:
		return "processor_error"
	default:
		return "internal"
	}
}

// Error is a classified failure. Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind   `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
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

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound            = New(KindNotFound, "not found", nil)
	ErrCapacityExceeded    = New(KindCapacityExceeded, "capacity exceeded", nil)
	ErrResourceUnavailable = New(KindResourceUnavailable, "resource unavailable", nil)
	ErrInvalidState        = New(KindInvalidState, "invalid state", nil)
	ErrInvalidAmount       = New(KindInvalidAmount, "invalid amount", nil)
	ErrInvalidInput        = New(KindInvalidInput, "invalid input", nil)
	ErrProcessor           = New(KindProcessorError, "payment processor error", nil)
)

func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return Newf(KindInvalidState, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return Newf(KindInvalidInput, format, args...)
}

func Processor(message string, err error) *Error {
	return New(KindProcessorError, message, err)
}

func Internal(message string, err error) *Error {
	return New(KindInternal, message, err)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindCapacityExceeded, KindInvalidAmount, KindInvalidInput:
		return http.StatusBadRequest
	case KindResourceUnavailable, KindInvalidState:
		return http.StatusConflict
	case KindProcessorError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
