// Package dalerr defines the categorized errors surfaced by the data-access layer.
//
// Every error returned by an adapter is either nil or carries a Kind that can be
// inspected with KindOf, no matter how many times it was wrapped on the way up.
package dalerr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindValidation           Kind = "VALIDATION"
	KindUniqueConstraint     Kind = "UNIQUE_CONSTRAINT"
	KindForeignKeyConstraint Kind = "FOREIGN_KEY_CONSTRAINT"
	KindNotImplemented       Kind = "NOT_IMPLEMENTED"
	KindInternal             Kind = "INTERNAL"
)

// CodeEmptyFilter marks a filter that has nothing left to compile.
const CodeEmptyFilter = "EMPTY_FILTER"

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += "(" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause lets errors.Cause reach the backend error.
func (e *Error) Cause() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap categorizes err. An error that already carries a Kind keeps it.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	var dalErr *Error
	if errors.As(err, &dalErr) {
		return errors.WithMessage(err, message)
	}
	return &Error{Kind: kind, Message: message, Err: errors.WithStack(err)}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(code string, format string, args ...any) *Error {
	e := New(KindValidation, format, args...)
	e.Code = code
	return e
}

func EmptyFilter() *Error {
	return Validation(CodeEmptyFilter, "filter has no applicable predicates")
}

func NotImplemented(operation, backend string) *Error {
	return New(KindNotImplemented, "%s is not supported by the %s backend", operation, backend)
}

func Internal(err error, message string) error {
	return Wrap(KindInternal, err, message)
}

// KindOf returns the Kind carried by err. Uncategorized errors are INTERNAL,
// nil has no Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var dalErr *Error
	if errors.As(err, &dalErr) {
		return dalErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the Code of the categorized error in the chain, if any.
func CodeOf(err error) string {
	var dalErr *Error
	if errors.As(err, &dalErr) {
		return dalErr.Code
	}
	return ""
}
