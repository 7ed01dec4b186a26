package auditevent

import (
	"context"
	"net/http"

	"github.com/ehr/assessment/internal/platform/middleware"
)

// AccessRecorder adapts the writer to the admin-access audit middleware.
type AccessRecorder struct {
	w *Writer
}

func NewAccessRecorder(w *Writer) *AccessRecorder {
	return &AccessRecorder{w: w}
}

func (a *AccessRecorder) RecordAccess(ctx context.Context, entry middleware.AccessEntry) error {
	outcome := OutcomeSuccess
	switch {
	case entry.StatusCode == http.StatusUnauthorized || entry.StatusCode == http.StatusForbidden:
		outcome = OutcomeBlocked
	case entry.StatusCode >= 500:
		outcome = OutcomeFailed
	case entry.StatusCode >= 400:
		outcome = OutcomeRejected
	}
	_, err := a.w.Record(ctx, Record{
		Action:   ActionAdminAccess,
		ActorID:  entry.ActorID,
		ModuleID: ModuleGovernance,
		Outcome:  outcome,
		Details: map[string]any{
			"action":      entry.Action,
			"method":      entry.Method,
			"route":       entry.Route,
			"path":        entry.Path,
			"status_code": entry.StatusCode,
			"roles":       entry.ActorRoles,
		},
		NetworkAddress: entry.NetworkAddress,
		UserAgent:      entry.UserAgent,
		RequestID:      entry.RequestID,
	})
	return err
}
