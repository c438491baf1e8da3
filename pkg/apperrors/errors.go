// Package apperrors defines the error taxonomy shared by services and handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "forbidden"
	KindValidation    Kind = "validation"
	KindProvider      Kind = "provider"
)

// Error is a classified application error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Details any
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

// StatusCode maps the kind to the HTTP status the API answers with.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewAuthError reports a bad or unverifiable credential.
func NewAuthError(cause error) *Error {
	return &Error{Kind: KindAuth, Message: "invalid or unverifiable credential", Err: cause}
}

// NewNotFoundError reports a missing resource, e.g. NewNotFoundError("generation").
func NewNotFoundError(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewAuthorizationError reports an authenticated caller acting on something it does not own.
func NewAuthorizationError(resource string) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf("you do not have permission to access this %s", resource)}
}

func NewValidationError(message string, details any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// NewProviderError wraps a failure talking to the generation provider.
func NewProviderError(op string, cause error) *Error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf("provider %s failed", op), Err: cause}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
