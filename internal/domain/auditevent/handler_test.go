package auditevent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/platform/apperr"
	"github.com/ehr/assessment/internal/platform/middleware"
)

func newTestHandler() (*Handler, *mockAuditRepo, *echo.Echo) {
	repo := newMockAuditRepo()
	return NewHandler(NewService(repo)), repo, echo.New()
}

func seed(repo *mockAuditRepo, action string, outcome Outcome, at time.Time) *Entry {
	e := &Entry{ID: uuid.New(), Action: action, ModuleID: ModuleAssessment, Outcome: outcome, Details: []byte(`{}`), RecordedAt: at}
	repo.store[e.ID] = e
	return e
}

func TestHandler_GetAuditEntry(t *testing.T) {
	h, repo, e := newTestHandler()
	entry := seed(repo, ActionAssessmentCreate, OutcomeSuccess, time.Now())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())

	if err := h.GetAuditEntry(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != entry.ID {
		t.Errorf("expected %s, got %s", entry.ID, got.ID)
	}
}

func TestHandler_GetAuditEntry_Errors(t *testing.T) {
	h, _, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if err := h.GetAuditEntry(c); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.GetAuditEntry(c); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_ListAuditEntries(t *testing.T) {
	h, repo, e := newTestHandler()
	now := time.Now()
	seed(repo, ActionAssessmentCreate, OutcomeSuccess, now)
	seed(repo, ActionAssessmentCreate, OutcomeBlocked, now.Add(time.Second))
	seed(repo, ActionAdminAccess, OutcomeSuccess, now.Add(2*time.Second))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?outcome=success&limit=10", nil), rec)
	if err := h.ListAuditEntries(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Data) != 2 {
		t.Errorf("expected 2 successful entries, got %d/%d", len(body.Data), body.Total)
	}
}

func TestAccessRecorder(t *testing.T) {
	repo := newMockAuditRepo()
	w := NewWriter(repo, testWriterConfig(ModeSync), zerolog.Nop(), nil)
	rec := NewAccessRecorder(w)

	err := rec.RecordAccess(context.Background(), middleware.AccessEntry{
		ActorID:    "gov-admin",
		Action:     "update",
		Route:      "/api/v1/governance/rules/:id",
		Method:     http.MethodPut,
		StatusCode: http.StatusForbidden,
		RequestID:  "req-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _, _ := repo.ListAuditEntries(context.Background(), Filter{}, 10, 0)
	if len(items) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(items))
	}
	got := items[0]
	if got.Action != ActionAdminAccess || got.ModuleID != ModuleGovernance || got.Outcome != OutcomeBlocked {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.RequestID != "req-9" || got.ActorID == nil || *got.ActorID != "gov-admin" {
		t.Errorf("identity not carried over: %+v", got)
	}
}
