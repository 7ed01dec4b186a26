package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/platform/apperr"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AccessEntry
	err     error
}

func (m *mockRecorder) RecordAccess(_ context.Context, entry AccessEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func runAudit(t *testing.T, rec AccessRecorder, method, path string, h echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := withActor(httptest.NewRequest(method, path, nil), "gov-admin", "governance_admin")
	req.Header.Set("User-Agent", "rules-cli/1.0")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/governance/rules/:id")
	c.Set("request_id", "req-123")
	return Audit(zerolog.Nop(), rec, "/api/v1/governance/")(h)(c)
}

func TestAudit_RecordsGovernanceCall(t *testing.T) {
	rec := &mockRecorder{}
	if err := runAudit(t, rec, http.MethodPut, "/api/v1/governance/rules/abc", okHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.entries[0]
	if got.ActorID != "gov-admin" {
		t.Errorf("expected actor gov-admin, got %s", got.ActorID)
	}
	if got.Action != "update" {
		t.Errorf("expected update, got %s", got.Action)
	}
	if got.Route != "/api/v1/governance/rules/:id" {
		t.Errorf("unexpected route %s", got.Route)
	}
	if got.RequestID != "req-123" {
		t.Errorf("expected req-123, got %s", got.RequestID)
	}
	if got.UserAgent != "rules-cli/1.0" {
		t.Errorf("unexpected user agent %s", got.UserAgent)
	}
	if got.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", got.StatusCode)
	}
}

func TestAudit_RecordsErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	err := runAudit(t, rec, http.MethodGet, "/api/v1/governance/rules/missing", func(c echo.Context) error {
		return apperr.NotFound("rule not found")
	})
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if rec.entries[0].StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.entries[0].StatusCode)
	}
	if rec.entries[0].Action != "read" {
		t.Errorf("expected read, got %s", rec.entries[0].Action)
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	rec := &mockRecorder{}
	if err := runAudit(t, rec, http.MethodPost, "/api/v1/assessments", okHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected no entries, got %d", rec.count())
	}
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("store down")}
	if err := runAudit(t, rec, http.MethodPost, "/api/v1/governance/rules", okHandler); err != nil {
		t.Fatalf("recorder failure must not surface: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected recorder to be called once, got %d", rec.count())
	}
}
