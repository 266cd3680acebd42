package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/services"
)

// HealthHandlers serves liveness and readiness probes. Liveness never touches
// dependencies; readiness runs the system health report.
type HealthHandlers struct {
	system    services.SystemService
	clock     func() time.Time
	startedAt time.Time
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service used by the readiness probe.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock overrides the clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.clock().UTC()
	return h
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readinessResponse struct {
	Status      string                        `json:"status"`
	Checks      map[string]healthCheckPayload `json:"checks"`
	Details     []string                      `json:"details"`
	GeneratedAt string                        `json:"generatedAt,omitempty"`
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    string(domain.HealthStatusOK),
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

// Readyz reports whether the engine's dependencies are reachable. Anything
// other than an ok report answers 503 so load balancers stop routing here.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readinessResponse{
			Status:  string(domain.HealthStatusError),
			Checks:  map[string]healthCheckPayload{},
			Details: []string{err.Error()},
		})
		return
	}

	resp := readinessResponse{
		Status:      string(report.Status),
		Checks:      make(map[string]healthCheckPayload, len(report.Checks)),
		Details:     []string{},
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	for name, check := range report.Checks {
		resp.Checks[name] = healthCheckPayload{
			Status:    string(check.Status),
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			resp.Details = append(resp.Details, fmt.Sprintf("%s: %s", name, check.Error))
		}
	}
	sort.Strings(resp.Details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
