// Package apperr defines the typed failures returned by the service layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/campusrent/campusrent/internal/db"
)

// Kind classifies an error for the API boundary.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidState
	KindInvariantViolation
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState, KindInvariantViolation:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error is a typed failure. Code is a stable machine-readable identifier,
// Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, if set on target, by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, "validation_failed", format, args...)
}

// Unauthenticated reports a missing or invalid credential.
func Unauthenticated(code, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: code, Message: message}
}

// Forbidden reports an authenticated caller lacking role or ownership.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// NotFound reports an absent or soft-deleted entity.
func NotFound(entity string) *Error {
	return newf(KindNotFound, entity+"_not_found", "%s not found", entity)
}

// Conflict reports a booking overlap, duplicate review and similar clashes.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// InvalidState reports a transition the state machine does not allow.
func InvalidState(format string, args ...any) *Error {
	return newf(KindInvalidState, "invalid_state", format, args...)
}

// InvariantViolation reports an action that would remove the last holder of a
// privileged role.
func InvariantViolation(format string, args ...any) *Error {
	return newf(KindInvariantViolation, "last_role_holder", format, args...)
}

// Unavailable wraps a store failure that should degrade to 503.
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "store_unavailable", Message: "service temporarily unavailable", Err: err}
}

// Sentinels for errors.Is checks on kind alone.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
)

// KindOf returns the kind of err, KindInternal if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Store passes a store error through, turning busy, locked and timed-out
// database errors into Unavailable. Errors that already carry a kind are left
// alone.
func Store(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if db.IsBusy(err) {
		return Unavailable(err)
	}
	return err
}
