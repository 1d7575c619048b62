package model

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a class of stock failure.
type ErrorKind string

const (
	KindInsufficientStock    ErrorKind = "INSUFFICIENT_STOCK"
	KindInsufficientReserved ErrorKind = "INSUFFICIENT_RESERVED"
	KindInvalidQuantity      ErrorKind = "INVALID_QUANTITY"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindConflict             ErrorKind = "CONFLICT"
	KindMalformedCursor      ErrorKind = "MALFORMED_CURSOR"
	KindTransport            ErrorKind = "TRANSPORT_ERROR"
)

// StockError is a typed failure returned before any state is changed.
// errors.Is matches on Kind, so callers compare against the Err* values.
type StockError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *StockError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StockError) Unwrap() error { return e.Err }

// Is reports whether target is a StockError of the same kind.
func (e *StockError) Is(target error) bool {
	t, ok := target.(*StockError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInsufficientStock    = &StockError{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrInsufficientReserved = &StockError{Kind: KindInsufficientReserved, Message: "insufficient reserved stock"}
	ErrInvalidQuantity      = &StockError{Kind: KindInvalidQuantity, Message: "invalid quantity"}
	ErrNotFound             = &StockError{Kind: KindNotFound, Message: "not found"}
	ErrConflict             = &StockError{Kind: KindConflict, Message: "conflict"}
	ErrMalformedCursor      = &StockError{Kind: KindMalformedCursor, Message: "malformed cursor"}
	ErrTransport            = &StockError{Kind: KindTransport, Message: "transport error"}
)

// NewError builds a StockError with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *StockError {
	return &StockError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a StockError around a cause.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *StockError {
	return &StockError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first StockError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var se *StockError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
