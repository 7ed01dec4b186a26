package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.Inc(AuditEntriesDroppedTotal)
	m.Inc(AuditEntriesDroppedTotal)
	m.Inc(GovernanceBlocksTotal, "rule_type", "bias_detection")

	if got := m.Counter(AuditEntriesDroppedTotal); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := m.Counter(GovernanceBlocksTotal, "rule_type", "bias_detection"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := m.Counter(GovernanceBlocksTotal, "rule_type", "compliance"); got != 0 {
		t.Errorf("expected 0 for unseen series, got %d", got)
	}
}

func TestMetrics_ConcurrentInc(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Inc(AssessmentsTotal, "outcome", "completed")
			}
		}()
	}
	wg.Wait()
	if got := m.Counter(AssessmentsTotal, "outcome", "completed"); got != 5000 {
		t.Errorf("expected 5000, got %d", got)
	}
}

func TestMetrics_Export(t *testing.T) {
	m := NewMetrics()
	m.Inc(AssessmentsTotal, "outcome", "completed")
	m.SetGauge(AuditQueueDepth, 3)
	m.Observe(InferenceDuration, 0.2)
	m.Observe(InferenceDuration, 12)

	out := m.Export()
	for _, want := range []string{
		"# TYPE assessments_total counter",
		`assessments_total{outcome="completed"} 1`,
		"# TYPE audit_queue_depth gauge",
		"audit_queue_depth 3",
		"# TYPE inference_duration_seconds histogram",
		`inference_duration_seconds_bucket{le="0.25"} 1`,
		`inference_duration_seconds_bucket{le="+Inf"} 2`,
		"inference_duration_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q\n%s", want, out)
		}
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/metrics", m.Handler())
	e.GET("/api/v1/assessments/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/assessments/abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := m.HistogramCount(HTTPRequestDuration, "method", "GET", "route", "/api/v1/assessments/:id", "status_code", "200"); got != 1 {
		t.Errorf("expected one observation for the route pattern, got %d", got)
	}
	if got := m.Gauge(HTTPActiveRequests); got != 0 {
		t.Errorf("expected no active requests, got %d", got)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_server_request_duration_seconds_count") {
		t.Errorf("metrics endpoint missing request histogram:\n%s", rec.Body.String())
	}
}
