package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWith(roles, perms []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	ctx = context.WithValue(ctx, UserPermsKey, perms)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := contextWith([]string{"clinician"}, nil)
	if err := RequireRole("clinician", "reviewer")(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := contextWith([]string{"billing"}, nil)
	err := RequireRole("clinician")(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := contextWith([]string{"admin"}, nil)
	if err := RequireRole("clinician")(okHandler)(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		perms []string
		need  string
		ok    bool
	}{
		{"explicit permission", nil, []string{PermAssessmentCreate}, PermAssessmentCreate, true},
		{"role grants permission", []string{"clinician"}, nil, PermAssessmentRead, true},
		{"role lacks permission", []string{"clinician"}, nil, PermGovernanceAdmin, false},
		{"auditor reads audit", []string{"auditor"}, nil, PermAuditRead, true},
		{"admin passes", []string{RoleAdmin}, nil, PermGovernanceAdmin, true},
		{"nothing granted", nil, nil, PermAssessmentRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := contextWith(tt.roles, tt.perms)
			err := RequirePermission(tt.need)(okHandler)(c)
			if (err == nil) != tt.ok {
				t.Errorf("err = %v, want ok=%v", err, tt.ok)
			}
			if err != nil {
				if httpErr, isHTTP := err.(*echo.HTTPError); !isHTTP || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-123")
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}
