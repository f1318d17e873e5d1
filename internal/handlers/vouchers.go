package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietcart/api/internal/platform/auth"
	"github.com/vietcart/api/internal/platform/httpx"
	"github.com/vietcart/api/internal/services"
)

const maxVoucherBodySize = 4 * 1024

// VoucherHandlers exposes the voucher eligibility check to authenticated users.
// Admin CRUD lives under /admin/vouchers.
type VoucherHandlers struct {
	authn    *auth.Authenticator
	vouchers services.VoucherService
}

// NewVoucherHandlers constructs a new VoucherHandlers instance.
func NewVoucherHandlers(authn *auth.Authenticator, vouchers services.VoucherService) *VoucherHandlers {
	return &VoucherHandlers{authn: authn, vouchers: vouchers}
}

// Routes registers the /vouchers endpoints.
func (h *VoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/check", h.checkVoucher)
}

type checkVoucherRequest struct {
	Code        string `json:"code"`
	OrderAmount int64  `json:"orderAmount"`
}

type checkVoucherResponse struct {
	Valid       bool            `json:"valid"`
	Message     string          `json:"message"`
	ReducePrice int64           `json:"reducePrice"`
	Voucher     *voucherPayload `json:"voucher,omitempty"`
}

type voucherPayload struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Type           string `json:"type"`
	Discount       int64  `json:"discount"`
	MaxDiscount    *int64 `json:"maxDiscount,omitempty"`
	MinOrderAmount *int64 `json:"minOrderAmount,omitempty"`
	MaxOrderAmount *int64 `json:"maxOrderAmount,omitempty"`
	MaxUsage       *int   `json:"maxUsage,omitempty"`
	UsageCount     int    `json:"usageCount"`
	IsActive       bool   `json:"isActive"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

func (h *VoucherHandlers) checkVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	var req checkVoucherRequest
	if !decodeJSONBody(ctx, w, r, maxVoucherBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher code is required", http.StatusBadRequest))
		return
	}
	if req.OrderAmount <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderAmount must be positive", http.StatusBadRequest))
		return
	}

	result, err := h.vouchers.CheckCanUseVoucher(ctx, req.Code, req.OrderAmount)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	payload := checkVoucherResponse{
		Valid:       result.Valid,
		Message:     result.Message,
		ReducePrice: result.ReducePrice,
	}
	if result.Voucher != nil {
		voucher := buildVoucherPayload(*result.Voucher)
		payload.Voucher = &voucher
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func buildVoucherPayload(voucher services.Voucher) voucherPayload {
	return voucherPayload{
		ID:             voucher.ID,
		Code:           voucher.Code,
		Type:           string(voucher.Type),
		Discount:       voucher.Discount,
		MaxDiscount:    voucher.MaxDiscount,
		MinOrderAmount: voucher.MinOrderAmount,
		MaxOrderAmount: voucher.MaxOrderAmount,
		MaxUsage:       voucher.MaxUsage,
		UsageCount:     voucher.UsageCount,
		IsActive:       voucher.IsActive,
		CreatedAt:      formatTime(voucher.CreatedAt),
		UpdatedAt:      formatTime(voucher.UpdatedAt),
	}
}

func writeVoucherError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVoucherInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("voucher_error", "failed to process voucher request", http.StatusInternalServerError))
	}
}
