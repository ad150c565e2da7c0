// Package apperr defines the failure classification shared by the access gate,
// the admin service and the HTTP layer.
//
// Every error that leaves a component boundary is an *Error carrying one of
// five kinds. HTTP handlers map kinds to status codes with HTTPStatus so that
// clients can tell "log in" apart from "you lack permission" and "target not
// found" without ever seeing a raw storage error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure
type Kind string

const (
	KindUnauthenticated       Kind = "unauthenticated"
	KindInsufficientPrivilege Kind = "insufficient_privilege"
	KindNotFound              Kind = "not_found"
	KindValidation            Kind = "validation"
	KindStoreFailure          Kind = "store_failure"
)

// Sentinels for errors.Is matching against a kind
var (
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated}
	ErrInsufficientPrivilege = &Error{Kind: KindInsufficientPrivilege}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrStoreFailure          = &Error{Kind: KindStoreFailure}
)

// Error is a classified failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Unauthenticated reports a missing, malformed or rejected credential
func Unauthenticated(format string, args ...interface{}) error {
	return &Error{Kind: KindUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

// InsufficientPrivilege reports an authenticated caller lacking the required role
func InsufficientPrivilege(format string, args ...interface{}) error {
	return &Error{Kind: KindInsufficientPrivilege, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing target
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input to a mutation
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// StoreFailure wraps an underlying storage error
func StoreFailure(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindStoreFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// WrapUnauthenticated keeps the verifier's cause for logging while classifying the failure
func WrapUnauthenticated(err error, message string) error {
	return &Error{Kind: KindUnauthenticated, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are reported as store failures since they can only originate from
// infrastructure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreFailure
}

// HTTPStatus maps an error to the status code handlers respond with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInsufficientPrivilege:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the client-facing text for err; store failures never leak their cause
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindStoreFailure {
		return "internal storage error"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}
