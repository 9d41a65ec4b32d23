// Package apperr defines the error kinds shared by every domain service and
// maps them to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBusinessRule = errors.New("business rule violation")
)

// Error is a classified error whose message is safe to show to clients.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return newf(ErrUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(ErrForbidden, format, args...)
}

// NotFound builds "<what> not found".
func NotFound(what string) error {
	return newf(ErrNotFound, "%s not found", what)
}

func Conflict(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

func Business(format string, args ...interface{}) error {
	return newf(ErrBusinessRule, format, args...)
}

// Status returns the HTTP status for err's kind, or 500.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBusinessRule):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTP converts a service error into an *echo.HTTPError. Unclassified errors
// keep the original as Internal so the error handler can log it.
func HTTP(err error) *echo.HTTPError {
	code := Status(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(code, err.Error())
}
