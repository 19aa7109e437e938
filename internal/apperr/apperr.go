// Package apperr defines the error kinds surfaced at operation boundaries.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindRemoteService
	KindPartialFailure
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRemoteService:
		return "remote_service"
	case KindPartialFailure:
		return "partial_failure"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ErrorKind() Kind {
	return e.Kind
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Remote(msg string, err error) error {
	return &Error{Kind: KindRemoteService, Msg: msg, Err: err}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

// Kinder is implemented by errors that carry their own kind.
type Kinder interface {
	ErrorKind() Kind
}

// KindOf returns the kind of the first error in the chain that declares one.
func KindOf(err error) Kind {
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}
