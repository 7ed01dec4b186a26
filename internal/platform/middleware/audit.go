package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/platform/auth"
)

// AccessEntry describes one administrative API call.
type AccessEntry struct {
	ActorID        string
	ActorRoles     []string
	Action         string // read, create, update, delete
	Route          string
	Path           string
	Method         string
	NetworkAddress string
	UserAgent      string
	RequestID      string
	StatusCode     int
	Timestamp      time.Time
}

// AccessRecorder persists access entries. The audit trail writer implements
// it; tests pass a recording fake.
type AccessRecorder interface {
	RecordAccess(ctx context.Context, entry AccessEntry) error
}

type AccessRecorderFunc func(ctx context.Context, entry AccessEntry) error

func (f AccessRecorderFunc) RecordAccess(ctx context.Context, entry AccessEntry) error {
	return f(ctx, entry)
}

// Audit records every request whose path starts with one of prefixes after the
// handler has run, so the entry carries the final status. Recorder failures
// are logged and never change the response.
func Audit(logger zerolog.Logger, recorder AccessRecorder, prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasAnyPrefix(req.URL.Path, prefixes) {
				return next(c)
			}

			err := next(c)

			entry := AccessEntry{
				ActorID:        auth.UserIDFromContext(req.Context()),
				ActorRoles:     auth.RolesFromContext(req.Context()),
				Action:         httpMethodToAction(req.Method),
				Route:          c.Path(),
				Path:           req.URL.Path,
				Method:         req.Method,
				NetworkAddress: c.RealIP(),
				UserAgent:      req.UserAgent(),
				RequestID:      RequestIDFrom(c),
				StatusCode:     c.Response().Status,
				Timestamp:      time.Now().UTC(),
			}
			if err != nil {
				entry.StatusCode = statusOf(err)
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(req.Context(), entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record access entry")
				}
			}

			logger.Info().
				Str("type", "admin_access").
				Str("request_id", entry.RequestID).
				Str("actor_id", entry.ActorID).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Int("status", entry.StatusCode).
				Msg("admin_access")

			return err
		}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
