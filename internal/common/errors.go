package common

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the transport layer can pick a status code.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindBadRequest   Kind = "bad_request"
	KindNotFound     Kind = "not_found"
	KindTooLarge     Kind = "too_large"
	KindBackend      Kind = "backend"
	KindBinary       Kind = "binary"
	KindInternal     Kind = "internal"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrPayloadTooLarge       = errors.New("payload too large")
)

// Error carries the operation that failed together with its classification.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s failed", e.Op)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text safe to show to API callers.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func NewError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func BadRequest(op, msg string) *Error {
	return &Error{Kind: KindBadRequest, Op: op, Msg: msg}
}

func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg, Err: ErrNotFound}
}

func Backend(op string, err error) *Error {
	return &Error{Kind: KindBackend, Op: op, Err: err}
}

func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf reports the classification of err, or KindInternal when err is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}
