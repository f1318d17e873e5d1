package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/platform/auth"
	"github.com/vietcart/api/internal/platform/httpx"
	"github.com/vietcart/api/internal/services"
)

const maxAdminBodySize = 8 * 1024

// AdminHandlers exposes the back-office surface: order search and
// transitions, voucher management, and the user directory.
type AdminHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	vouchers services.VoucherService
	users    services.UserService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, vouchers services.VoucherService, users services.UserService) *AdminHandlers {
	return &AdminHandlers{
		authn:    authn,
		orders:   orders,
		vouchers: vouchers,
		users:    users,
	}
}

// Routes registers the /admin endpoints behind the admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.searchOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
	r.Get("/vouchers", h.listVouchers)
	r.Post("/vouchers", h.createVoucher)
	r.Put("/vouchers/{voucherID}", h.updateVoucher)
	r.Delete("/vouchers/{voucherID}", h.deleteVoucher)
	r.Get("/users", h.listUsers)
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type upsertVoucherRequest struct {
	Code           string `json:"code"`
	Type           string `json:"type"`
	Discount       int64  `json:"discount"`
	MaxDiscount    *int64 `json:"maxDiscount"`
	MinOrderAmount *int64 `json:"minOrderAmount"`
	MaxOrderAmount *int64 `json:"maxOrderAmount"`
	MaxUsage       *int   `json:"maxUsage"`
	IsActive       bool   `json:"isActive"`
}

func (h *AdminHandlers) searchOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	page, err := parsePageParams(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderSearchFilter{
		UserID: firstQueryValue(query, "userId"),
		Code:   firstQueryValue(query, "search"),
		SortBy: firstQueryValue(query, "orderBy"),
		Page:   page,
	}
	if raw := strings.ToLower(firstQueryValue(query, "direction")); raw == string(domain.SortAsc) {
		filter.SortOrder = domain.SortAsc
	} else {
		filter.SortOrder = domain.SortDesc
	}
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(strings.ToLower(raw))
		if !domain.ValidOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown status", http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	for _, raw := range parseFilterValues(query["paymentMethod"]) {
		method := domain.PaymentMethod(strings.ToLower(raw))
		if !domain.ValidPaymentMethod(method) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentMethod filter contains an unknown method", http.StatusBadRequest))
			return
		}
		filter.PaymentMethods = append(filter.PaymentMethods, method)
	}
	for _, raw := range parseFilterValues(query["paymentStatus"]) {
		status := domain.PaymentStatus(strings.ToLower(raw))
		if !domain.ValidPaymentStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentStatus filter contains an unknown status", http.StatusBadRequest))
			return
		}
		filter.PaymentStatus = append(filter.PaymentStatus, status)
	}
	if filter.DateRange, err = parseDateRange(query); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.SearchOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(result))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if !decodeJSONBody(ctx, w, r, maxAdminBodySize, &req) {
		return
	}

	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !domain.ValidOrderStatus(target) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	var (
		order services.Order
		err   error
	)
	if target == domain.OrderStatusCancelled {
		order, err = h.orders.Cancel(ctx, services.CancelOrderCommand{
			OrderID: orderID,
			ActorID: identity.UID,
			Reason:  strings.TrimSpace(req.Reason),
		})
	} else {
		order, err = h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
			OrderID:      orderID,
			TargetStatus: target,
			ActorID:      identity.UID,
		})
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	page, err := parsePageParams(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.vouchers.List(ctx, services.VoucherListFilter{
		ActiveOnly: strings.EqualFold(firstQueryValue(query, "active"), "true"),
		Page:       page,
	})
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	vouchers := make([]voucherPayload, 0, len(result.Items))
	for _, voucher := range result.Items {
		vouchers = append(vouchers, buildVoucherPayload(voucher))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"vouchers":   vouchers,
		"total":      result.Total,
		"page":       result.Page,
		"limit":      result.Limit,
		"totalPages": result.TotalPages,
	})
}

func (h *AdminHandlers) createVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	var req upsertVoucherRequest
	if !decodeJSONBody(ctx, w, r, maxAdminBodySize, &req) {
		return
	}

	voucher, err := h.vouchers.Create(ctx, buildVoucherCommand(req))
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildVoucherPayload(voucher))
}

func (h *AdminHandlers) updateVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	voucherID := strings.TrimSpace(chi.URLParam(r, "voucherID"))
	if voucherID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher id is required", http.StatusBadRequest))
		return
	}

	var req upsertVoucherRequest
	if !decodeJSONBody(ctx, w, r, maxAdminBodySize, &req) {
		return
	}

	voucher, err := h.vouchers.Update(ctx, voucherID, buildVoucherCommand(req))
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVoucherPayload(voucher))
}

func (h *AdminHandlers) deleteVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	voucherID := strings.TrimSpace(chi.URLParam(r, "voucherID"))
	if voucherID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher id is required", http.StatusBadRequest))
		return
	}

	if err := h.vouchers.Delete(ctx, voucherID); err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	page, err := parsePageParams(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.users.ListUsers(ctx, services.UserListFilter{
		Role: strings.ToLower(firstQueryValue(query, "role")),
		Page: page,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	users := make([]profilePayload, 0, len(result.Items))
	for _, profile := range result.Items {
		users = append(users, buildProfilePayload(profile))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"users":      users,
		"total":      result.Total,
		"page":       result.Page,
		"limit":      result.Limit,
		"totalPages": result.TotalPages,
	})
}

func buildVoucherCommand(req upsertVoucherRequest) services.UpsertVoucherCommand {
	return services.UpsertVoucherCommand{
		Code:           strings.TrimSpace(req.Code),
		Type:           domain.VoucherType(strings.ToLower(strings.TrimSpace(req.Type))),
		Discount:       req.Discount,
		MaxDiscount:    req.MaxDiscount,
		MinOrderAmount: req.MinOrderAmount,
		MaxOrderAmount: req.MaxOrderAmount,
		MaxUsage:       req.MaxUsage,
		IsActive:       req.IsActive,
	}
}
