package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/services"
)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	handlers := NewHealthHandlers(
		WithHealthClock(func() time.Time { return now }),
	)
	now = start.Add(30 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handlers.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != string(domain.HealthStatusOK) {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	system := &stubSystemService{
		healthFunc: func(ctx context.Context) (services.SystemHealth, error) {
			return services.SystemHealth{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond, CheckedAt: now},
				},
				GeneratedAt: now,
			}, nil
		},
	}

	handlers := NewHealthHandlers(WithHealthSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body readinessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != string(domain.HealthStatusOK) {
		t.Fatalf("expected ok, got %s", body.Status)
	}
	if len(body.Details) != 0 {
		t.Fatalf("expected no details, got %v", body.Details)
	}
	if body.Checks["firestore"].Status != string(domain.HealthStatusOK) {
		t.Fatalf("expected firestore ok, got %#v", body.Checks)
	}
}

func TestHealthHandlersReadyzFailure(t *testing.T) {
	system := &stubSystemService{
		healthFunc: func(ctx context.Context) (services.SystemHealth, error) {
			return services.SystemHealth{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"pubsub": {Status: domain.HealthStatusDegraded, Error: "publish failed"},
				},
			}, nil
		},
	}

	handlers := NewHealthHandlers(WithHealthSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var body readinessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != string(domain.HealthStatusDegraded) {
		t.Fatalf("expected degraded, got %s", body.Status)
	}
	if len(body.Details) != 1 || body.Details[0] != "pubsub: publish failed" {
		t.Fatalf("expected pubsub detail, got %v", body.Details)
	}
}
