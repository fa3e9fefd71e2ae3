package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/degraded"
	"github.com/nvaidyanathan/panchangam-today/internal/lifecycle"
	"github.com/nvaidyanathan/panchangam-today/internal/overload"
)

type healthBody struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

func getHealth(t *testing.T, h *Handler) (int, healthBody) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.GetHealth(w, req)
	var body healthBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, body
}

func TestHealthHealthy(t *testing.T) {
	degraded.Reset()
	overload.Reset()
	h, _ := newTestHandler(t, &stubSnapshotClient{snap: sampleSnapshot()}, nil)

	code, body := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if body.Service != "panchangam-today" {
		t.Errorf("service = %q", body.Service)
	}
	if body.Checks["panchangamApi"] != "healthy" {
		t.Errorf("checks = %+v", body.Checks)
	}
}

func TestHealthShuttingDownWinsOverEverything(t *testing.T) {
	degraded.Reset()
	overload.Reset()
	h, _ := newTestHandler(t, &stubSnapshotClient{snap: sampleSnapshot()}, nil)

	lifecycle.SetDraining(true)
	defer lifecycle.SetDraining(false)

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body.Status != "shutting-down" {
		t.Errorf("status = %q, want shutting-down", body.Status)
	}
}

func TestHealthDegradedOnErrorRateBreach(t *testing.T) {
	degraded.Reset()
	overload.Reset()
	h, _ := newTestHandler(t, &stubSnapshotClient{snap: sampleSnapshot()}, nil)
	h.healthConfig = &HealthConfig{
		DegradedWindow:   time.Minute,
		DegradedErrorPct: 50,
	}

	for i := 0; i < 3; i++ {
		degraded.RecordError()
	}
	degraded.RecordSuccess()
	defer degraded.Reset()

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Checks["panchangamApi"] != "unhealthy" {
		t.Errorf("checks = %+v", body.Checks)
	}
}

func TestHealthOverloadedOnRequestFlood(t *testing.T) {
	degraded.Reset()
	overload.Reset()
	h, _ := newTestHandler(t, &stubSnapshotClient{snap: sampleSnapshot()}, nil)
	h.healthConfig = &HealthConfig{
		OverloadWindow:       time.Minute,
		OverloadThresholdPct: 1,
		RateLimitRPS:         1,
	}

	// Threshold is 1 rps * 60s * 1% = 0.6 requests in the window.
	overload.RecordDenial()
	overload.RecordDenial()
	defer overload.Reset()

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body.Status != "overloaded" {
		t.Errorf("status = %q, want overloaded", body.Status)
	}
}

func TestHealthCacheCheck(t *testing.T) {
	degraded.Reset()
	overload.Reset()
	h, _ := newTestHandler(t, &stubSnapshotClient{snap: sampleSnapshot()}, nil)
	h.healthConfig = &HealthConfig{CachePing: func() error { return errors.New("unreachable") }}

	code, body := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 (cache trouble is reported, not fatal)", code)
	}
	if body.Checks["cache"] != "unhealthy" {
		t.Errorf("checks = %+v", body.Checks)
	}
}
