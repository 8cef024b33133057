// Package apperr is the error taxonomy of the users service.
//
// An Error is a closed tagged variant: its Kind says how it must be reported
// and Code carries the status-like number that goes on the wire. Errors are
// created by the service and the cascade client and converted to envelopes
// only by the queue router.
package apperr

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usersvc/internal/dto"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return dto.NameNotFound
	case KindInvalidInput:
		return dto.NameInvalidInput
	default:
		return dto.NameInternal
	}
}

type Error struct {
	Kind    Kind
	Code    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s(%d): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s(%d): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Name returns the wire name of the error kind.
func (e *Error) Name() string {
	return e.Kind.String()
}

// ToDto converts e into its wire form.
func (e *Error) ToDto() dto.ErrorDto {
	return dto.ErrorDto{Code: e.Code, Name: e.Name(), Message: e.Message}
}

// NotFound reports a missing entity. The caller picks the code: 404 for
// direct lookups, 401 on authentication paths.
func NotFound(code int, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// InvalidInput reports a malformed or incomplete request (400).
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Code: 400, Message: message}
}

// Internal reports any other failure (500).
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: 500, Message: message, Cause: cause}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of kind k.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}
