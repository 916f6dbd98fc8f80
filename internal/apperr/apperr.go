// Package apperr is the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindValidation
	KindGateway
	KindMalformedCallback
	KindDuplicateEvent
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindValidation:
		return "validation"
	case KindGateway:
		return "gateway_error"
	case KindMalformedCallback:
		return "malformed_callback"
	case KindDuplicateEvent:
		return "duplicate_event"
	default:
		return "internal_error"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrGateway           = &Error{Kind: KindGateway}
	ErrMalformedCallback = &Error{Kind: KindMalformedCallback}
	ErrDuplicateEvent    = &Error{Kind: KindDuplicateEvent}
)

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Gateway(op string, err error) error {
	return &Error{Kind: KindGateway, Op: op, Msg: "payment gateway rejected the request", Err: err}
}

func Malformed(op, format string, args ...any) error {
	return &Error{Kind: KindMalformedCallback, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Duplicate(op, format string, args ...any) error {
	return &Error{Kind: KindDuplicateEvent, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsBusiness reports whether err is a domain outcome rather than an
// infrastructure failure. Callback endpoints acknowledge business outcomes.
func IsBusiness(err error) bool {
	return err == nil || KindOf(err) != KindInternal
}
