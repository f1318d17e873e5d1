package handlers

import (
	"net/http"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/services"
)

// HealthHandlers exposes liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs health endpoints backed by the system service.
// A nil service yields a static "ok" liveness probe.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness plus build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if h.system != nil {
		build := h.system.Build()
		payload["version"] = build.Version
		payload["commit"] = build.Commit
		payload["environment"] = build.Environment
		payload["startedAt"] = formatTime(build.StartedAt)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz probes downstream dependencies and returns 503 when any check fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": string(domain.HealthStatusError),
			"error":  err.Error(),
		})
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{"status": string(check.Status)}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status":      string(report.Status),
		"checks":      checks,
		"generatedAt": formatTime(report.GeneratedAt),
	})
}
