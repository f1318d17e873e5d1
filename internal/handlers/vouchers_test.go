package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/services"
)

func newVoucherRouter(service services.VoucherService) http.Handler {
	handler := NewVoucherHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/vouchers", handler.Routes)
	return router
}

func TestCheckVoucherValidVerdict(t *testing.T) {
	maxDiscount := int64(20_000)
	service := &stubVoucherService{
		checkFunc: func(_ context.Context, code string, orderAmount int64) (services.VoucherCheckResult, error) {
			if code != "GIAM10" || orderAmount != 500_000 {
				t.Fatalf("unexpected call %q %d", code, orderAmount)
			}
			return services.VoucherCheckResult{
				Valid:       true,
				Message:     "Mã giảm giá hợp lệ",
				ReducePrice: 20_000,
				Voucher: &services.Voucher{
					ID:          "vch_1",
					Code:        "GIAM10",
					Type:        domain.VoucherTypePercentage,
					Discount:    10,
					MaxDiscount: &maxDiscount,
					IsActive:    true,
					CreatedAt:   time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
				},
			}, nil
		},
	}
	router := newVoucherRouter(service)

	body := strings.NewReader(`{"code":"GIAM10","orderAmount":500000}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/vouchers/check", body, "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Valid       bool   `json:"valid"`
		Message     string `json:"message"`
		ReducePrice int64  `json:"reducePrice"`
		Voucher     *struct {
			Code        string `json:"code"`
			MaxDiscount *int64 `json:"maxDiscount"`
		} `json:"voucher"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Valid || payload.ReducePrice != 20_000 {
		t.Fatalf("unexpected verdict %+v", payload)
	}
	if payload.Voucher == nil || payload.Voucher.Code != "GIAM10" || *payload.Voucher.MaxDiscount != 20_000 {
		t.Fatalf("unexpected voucher %+v", payload.Voucher)
	}
}

func TestCheckVoucherInvalidVerdictOmitsVoucher(t *testing.T) {
	service := &stubVoucherService{
		checkFunc: func(context.Context, string, int64) (services.VoucherCheckResult, error) {
			return services.VoucherCheckResult{Valid: false, Message: "Mã giảm giá không tồn tại"}, nil
		},
	}
	router := newVoucherRouter(service)

	body := strings.NewReader(`{"code":"NOPE","orderAmount":100000}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/vouchers/check", body, "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unknown codes are verdicts, not errors: got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["valid"] != false {
		t.Fatalf("expected invalid verdict, got %v", payload)
	}
	if _, ok := payload["voucher"]; ok {
		t.Fatal("invalid verdicts must omit the voucher")
	}
}

func TestCheckVoucherValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"blank code", `{"code":"  ","orderAmount":100000}`},
		{"zero amount", `{"code":"GIAM10","orderAmount":0}`},
		{"negative amount", `{"code":"GIAM10","orderAmount":-5}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newVoucherRouter(&stubVoucherService{})

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, authedRequest(http.MethodPost, "/vouchers/check", strings.NewReader(tc.body), "user-7"))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestCheckVoucherRequiresIdentity(t *testing.T) {
	router := newVoucherRouter(&stubVoucherService{})

	req := httptest.NewRequest(http.MethodPost, "/vouchers/check", strings.NewReader(`{"code":"GIAM10","orderAmount":100000}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCheckVoucherServiceFailure(t *testing.T) {
	service := &stubVoucherService{
		checkFunc: func(context.Context, string, int64) (services.VoucherCheckResult, error) {
			return services.VoucherCheckResult{}, errors.New("store unavailable")
		},
	}
	router := newVoucherRouter(service)

	body := strings.NewReader(`{"code":"GIAM10","orderAmount":100000}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/vouchers/check", body, "user-7"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

type stubVoucherService struct {
	checkFunc  func(ctx context.Context, code string, orderAmount int64) (services.VoucherCheckResult, error)
	createFunc func(ctx context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error)
	updateFunc func(ctx context.Context, voucherID string, cmd services.UpsertVoucherCommand) (services.Voucher, error)
	deleteFunc func(ctx context.Context, voucherID string) error
	listFunc   func(ctx context.Context, filter services.VoucherListFilter) (domain.PagedResult[services.Voucher], error)
}

func (s *stubVoucherService) CheckCanUseVoucher(ctx context.Context, code string, orderAmount int64) (services.VoucherCheckResult, error) {
	if s.checkFunc != nil {
		return s.checkFunc(ctx, code, orderAmount)
	}
	return services.VoucherCheckResult{}, errors.New("check not stubbed")
}

func (s *stubVoucherService) Create(ctx context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Voucher{}, errors.New("create not stubbed")
}

func (s *stubVoucherService) Update(ctx context.Context, voucherID string, cmd services.UpsertVoucherCommand) (services.Voucher, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, voucherID, cmd)
	}
	return services.Voucher{}, errors.New("update not stubbed")
}

func (s *stubVoucherService) Delete(ctx context.Context, voucherID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, voucherID)
	}
	return errors.New("delete not stubbed")
}

func (s *stubVoucherService) List(ctx context.Context, filter services.VoucherListFilter) (domain.PagedResult[services.Voucher], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.PagedResult[services.Voucher]{}, nil
}

var _ services.VoucherService = (*stubVoucherService)(nil)
