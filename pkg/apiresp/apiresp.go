// Package apiresp renders the {success, data|message} response envelope.
package apiresp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/pkg/pagination"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Data       interface{}      `json:"data,omitempty"`
	Count      *int             `json:"count,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// OK writes {success: true, data}.
func OK(c echo.Context, code int, data interface{}) error {
	return c.JSON(code, Envelope{Success: true, Data: data})
}

// Message writes {success: true, message} with optional data.
func Message(c echo.Context, code int, msg string, data interface{}) error {
	return c.JSON(code, Envelope{Success: true, Message: msg, Data: data})
}

// List writes a slice with its count.
func List(c echo.Context, data interface{}, count int) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Count: &count})
}

// Paged writes one page of a paginated listing.
func Paged(c echo.Context, data interface{}, meta *pagination.Meta) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Pagination: meta})
}

// ErrorHandler renders every error returned by a handler as
// {success: false, message}. 5xx errors are logged with their cause.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = he.Internal
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", code).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, Envelope{Success: false, Message: msg})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
