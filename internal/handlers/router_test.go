package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/services"
)

func TestRouterHealthzWithoutSystemService(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestRouterHealthzReportsBuildMetadata(t *testing.T) {
	system := &stubSystemService{
		buildFunc: func() services.BuildInfo {
			return services.BuildInfo{
				Version:     "1.4.2",
				Commit:      "ab12cd3",
				Environment: "staging",
				StartedAt:   time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC),
			}
		},
	}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(system)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["version"] != "1.4.2" || payload["environment"] != "staging" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["startedAt"] != "2025-03-12T06:00:00Z" {
		t.Fatalf("unexpected startedAt %v", payload["startedAt"])
	}
}

func TestRouterReadyzDegradedDependency(t *testing.T) {
	system := &stubSystemService{
		healthFunc: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				},
				GeneratedAt: time.Date(2025, 3, 12, 6, 5, 0, 0, time.UTC),
			}, nil
		},
	}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(system)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var payload struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "error" || payload.Checks["firestore"].Error != "deadline exceeded" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRouterReadyzProbeFailure(t *testing.T) {
	system := &stubSystemService{
		healthFunc: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("collector offline")
		},
	}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(system)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRouterUnknownRouteReturnsJSONError(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("not found responses must stay JSON: %v", err)
	}
	if payload.Error != "route_not_found" {
		t.Fatalf("unexpected code %q", payload.Error)
	}
}

func TestRouterUnconfiguredGroupReportsNotImplemented(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error != "not_implemented" {
		t.Fatalf("unexpected code %q", payload.Error)
	}
}

func TestRouterMountsConfiguredGroups(t *testing.T) {
	registrar := func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSONResponse(w, http.StatusOK, map[string]string{"group": "vouchers"})
		})
	}
	router := NewRouter(WithVoucherRoutes(registrar))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/vouchers/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterAppliesGroupMiddleware(t *testing.T) {
	var sawHeader string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawHeader = r.Header.Get("Idempotency-Key")
			next.ServeHTTP(w, r)
		})
	}
	registrar := func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	}
	router := NewRouter(WithOrderRoutes(registrar), WithOrderMiddlewares(mw))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", nil)
	req.Header.Set("Idempotency-Key", "idem-42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if sawHeader != "idem-42" {
		t.Fatalf("group middleware did not run, saw %q", sawHeader)
	}
}

type stubSystemService struct {
	healthFunc func(ctx context.Context) (domain.SystemHealthReport, error)
	buildFunc  func() services.BuildInfo
}

func (s *stubSystemService) Health(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.healthFunc != nil {
		return s.healthFunc(ctx)
	}
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func (s *stubSystemService) Build() services.BuildInfo {
	if s.buildFunc != nil {
		return s.buildFunc()
	}
	return services.BuildInfo{}
}

var _ services.SystemService = (*stubSystemService)(nil)
