package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/platform/apperr"
)

// ErrorHandler writes every handler error as {"error":{kind,code,message,details}}.
// Internal errors are logged with their cause and returned without it.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", RequestIDFrom(c)).
				Str("route", c.Path()).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, apperr.Body{Error: body})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}

func render(err error) (int, *apperr.Error) {
	if e, ok := apperr.As(err); ok {
		return apperr.HTTPStatus(e.Kind), apperr.Public(e)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := httpKind(he.Code)
		return he.Code, &apperr.Error{
			Kind:    apperr.Kind(kind),
			Code:    kind,
			Message: httpMessage(he),
		}
	}
	return http.StatusInternalServerError, apperr.Public(err)
}

func statusOf(err error) int {
	status, _ := render(err)
	return status
}

func httpKind(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if status >= 500 {
		return "internal"
	}
	return "http_error"
}

func httpMessage(he *echo.HTTPError) string {
	if he.Code >= 500 {
		return http.StatusText(he.Code)
	}
	switch m := he.Message.(type) {
	case string:
		return m
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}
