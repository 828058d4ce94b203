// Package errs defines the error taxonomy shared by the coordinator and its edges.
//
// Every failure a client can observe carries a Kind, which decides how the
// edge reports it (HTTP status or gateway notice), and a stable Code that
// clients can switch on.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for reporting.
type Kind int

const (
	// KindInternal is anything not classified below.
	KindInternal Kind = iota
	// KindUnauthorized is a handshake-time credential failure.
	KindUnauthorized
	// KindNotFound means the referenced room or user does not exist.
	KindNotFound
	// KindConflict is a duplicate that must stay unique (general room, username).
	KindConflict
	// KindForbidden is a structural invariant violation.
	KindForbidden
	// KindBadRequest is a malformed payload or an action that does not apply.
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

// Client-visible codes.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeGeneralExists      = "GENERAL_EXISTS"
	CodeRoomExists         = "ROOM_EXISTS"
	CodeCannotLeaveGeneral = "CANNOT_LEAVE_GENERAL"
	CodeCannotLeaveOwnRoom = "CANNOT_LEAVE_OWN_ROOM"
	CodeNotAMember         = "NOT_A_MEMBER"
	CodeAlreadyMember      = "ALREADY_MEMBER"
	CodeBadRequest         = "BAD_REQUEST"
	CodeStoreFailure       = "STORE_FAILURE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUserExists         = "USER_EXISTS"
	CodeInternal           = "INTERNAL"
)

// Error is a classified error with a client-visible code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Wrap builds a classified error around a cause.
func Wrap(err error, kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Unauthorized(msg string) *Error {
	return New(KindUnauthorized, CodeUnauthorized, msg)
}

func NotFound(code, msg string) *Error {
	return New(KindNotFound, code, msg)
}

func Conflict(code, msg string) *Error {
	return New(KindConflict, code, msg)
}

func Forbidden(code, msg string) *Error {
	return New(KindForbidden, code, msg)
}

func BadRequest(code, msg string) *Error {
	return New(KindBadRequest, code, msg)
}

// StoreFailure reports an unavailable or failing persistence layer.
// It is BadRequest-class so the gateway degrades to telling the actor.
func StoreFailure(err error) *Error {
	return Wrap(err, KindBadRequest, CodeStoreFailure, "storage unavailable")
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal when unclassified.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	if e, ok := As(err); ok {
		return e.Message
	}
	return "internal error"
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// HTTPStatus maps a Kind to the response status used by the REST edge.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
