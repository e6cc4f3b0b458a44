package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("authorization failed")
	ErrReplay         = errors.New("replay detected")
	ErrExpired        = errors.New("expired")
	ErrNotFound       = errors.New("not found")
)

// Error carries a client-safe Message alongside the taxonomy Kind. Err is the
// underlying cause, if any, and is never shown to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case e.Kind != nil:
		return e.Kind.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode maps any error to its stable wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrAuthentication):
		return "AUTHENTICATION_FAILED"
	case errors.Is(err, ErrAuthorization):
		return "AUTHORIZATION_FAILED"
	case errors.Is(err, ErrReplay):
		return "REPLAY_DETECTED"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	}
	return "INTERNAL_ERROR"
}

func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case "":
		return http.StatusOK
	case "VALIDATION_ERROR":
		return http.StatusBadRequest
	case "CONFLICT", "REPLAY_DETECTED":
		return http.StatusConflict
	case "AUTHENTICATION_FAILED":
		return http.StatusUnauthorized
	case "AUTHORIZATION_FAILED":
		return http.StatusForbidden
	case "EXPIRED":
		return http.StatusGone
	case "NOT_FOUND":
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message safe to return to clients. Internal errors
// collapse to a generic string.
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Kind != nil {
		return svcErr.Error()
	}
	if ErrorCode(err) == "INTERNAL_ERROR" {
		return "internal server error"
	}
	return err.Error()
}
