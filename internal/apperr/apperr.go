package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Authentication
	Authorization
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authentication:
		return "authentication"
	case Authorization:
		return "authorization"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a domain error carrying a client-safe message. Err holds the
// underlying cause for logging and is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Invalid(message string) *Error         { return New(Validation, message) }
func Unauthenticated(message string) *Error { return New(Authentication, message) }
func Forbidden(message string) *Error       { return New(Authorization, message) }
func Missing(message string) *Error         { return New(NotFound, message) }
func Duplicate(message string) *Error       { return New(Conflict, message) }

// Wrap turns an unexpected failure into an Internal error with a generic message.
func Wrap(err error) *Error {
	return &Error{Kind: Internal, Message: "Internal server error", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Internal server error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
