package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/platform/auth"
	"github.com/vietcart/api/internal/platform/httpx"
	"github.com/vietcart/api/internal/services"
)

const (
	maxOrderCreateBodySize = 32 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes checkout and order lifecycle endpoints for
// authenticated users.
type OrderHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
	payments services.PaymentService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService, payments services.PaymentService) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
		payments: payments,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/code/{orderCode}", h.getOrderByCode)
	r.Get("/{orderID}/payments", h.listPayments)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type placeOrderRequest struct {
	CartItemIDs      []string `json:"cartItemIds"`
	AddressID        string   `json:"addressId"`
	PaymentMethod    string   `json:"paymentMethod"`
	VoucherID        *string  `json:"voucherId"`
	Note             string   `json:"note"`
	PayType          string   `json:"payType"`
	InstallmentCount int      `json:"installmentCount"`
	IdentityID       string   `json:"identityId"`
	FullName         string   `json:"fullName"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type placeOrderResponse struct {
	Order       orderPayload `json:"order"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders     []orderSummaryPayload `json:"orders"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	Limit      int                   `json:"limit"`
	TotalPages int                   `json:"totalPages"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Status        string `json:"status"`
	PaymentMethod string `json:"paymentMethod"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	TotalAmount   int64  `json:"totalAmount"`
	TotalItems    int    `json:"totalItems"`
	CreatedAt     string `json:"createdAt"`
}

type orderPayload struct {
	ID                string              `json:"id"`
	Code              string              `json:"code"`
	UserID            string              `json:"userId"`
	Status            string              `json:"status"`
	PaymentMethod     string              `json:"paymentMethod"`
	PayType           string              `json:"payType"`
	TotalAmount       int64               `json:"totalAmount"`
	TotalItems        int                 `json:"totalItems"`
	VoucherID         *string             `json:"voucherId,omitempty"`
	Voucher           *voucherPayload     `json:"voucher,omitempty"`
	DeliveryAddressID string              `json:"deliveryAddressId"`
	ShippingAddress   *addressPayload     `json:"shippingAddress,omitempty"`
	LastPaymentID     string              `json:"lastPaymentId,omitempty"`
	LastPaymentStatus string              `json:"lastPaymentStatus,omitempty"`
	Installment       *installmentPayload `json:"installment,omitempty"`
	Note              string              `json:"note,omitempty"`
	Items             []orderItemPayload  `json:"items"`
	Payments          []paymentPayload    `json:"payments,omitempty"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt,omitempty"`
	DeliveredAt       string              `json:"deliveredAt,omitempty"`
	CanceledAt        string              `json:"canceledAt,omitempty"`
	CancelReason      *string             `json:"cancelReason,omitempty"`
}

type orderItemPayload struct {
	VariantID  string `json:"variantId"`
	ProductRef string `json:"productRef,omitempty"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	Price      int64  `json:"price"`
}

type installmentPayload struct {
	Count           int    `json:"count"`
	NextPayDay      string `json:"nextPayDay,omitempty"`
	NextPayAmount   int64  `json:"nextPayAmount"`
	Remaining       int    `json:"remaining"`
	TotalPaidAmount int64  `json:"totalPaidAmount"`
}

type paymentPayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	Status         string `json:"status"`
	TransactionRef string `json:"transactionRef,omitempty"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderCreateBodySize, &req) {
		return
	}

	cmd := services.PlaceOrderCommand{
		UserID:           identity.UID,
		CartItemIDs:      req.CartItemIDs,
		ShippingAddress:  strings.TrimSpace(req.AddressID),
		PaymentMethod:    domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		VoucherID:        req.VoucherID,
		Note:             strings.TrimSpace(req.Note),
		PayType:          domain.PayType(strings.ToLower(strings.TrimSpace(req.PayType))),
		InstallmentCount: req.InstallmentCount,
		IdentityID:       strings.TrimSpace(req.IdentityID),
		FullName:         strings.TrimSpace(req.FullName),
		ClientIP:         r.RemoteAddr,
	}

	result, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		var initErr *services.PaymentInitiationError
		if errors.As(err, &initErr) {
			// The order committed; the client retries payment separately.
			writeJSONResponse(w, http.StatusAccepted, map[string]any{
				"order":   buildOrderPayload(result.Order),
				"warning": "payment initiation failed; retry payment for this order",
			})
			return
		}
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, placeOrderResponse{
		Order:       buildOrderPayload(result.Order),
		RedirectURL: result.RedirectURL,
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, err := parsePageParams(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{Page: page}
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(strings.ToLower(raw))
		if !domain.ValidOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown status", http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	if filter.DateRange, err = parseDateRange(query); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.ListUserOrders(ctx, identity.UID, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(result))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !ownsOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrderByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order code is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByCode(ctx, code)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !ownsOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !ownsOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	payments, err := h.payments.ListPayments(ctx, orderID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to list payments", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"payments": buildPaymentPayloads(payments)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !ownsOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	canceled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(canceled)})
}

func ownsOrder(identity *auth.Identity, order services.Order) bool {
	return strings.EqualFold(strings.TrimSpace(order.UserID), strings.TrimSpace(identity.UID))
}

func parseDateRange(query map[string][]string) (domain.RangeQuery[time.Time], error) {
	var dateRange domain.RangeQuery[time.Time]
	if raw := firstQueryValue(query, "createdAfter"); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return dateRange, errors.New("createdAfter must be a valid RFC3339 timestamp")
		}
		dateRange.From = &ts
	}
	if raw := firstQueryValue(query, "createdBefore"); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return dateRange, errors.New("createdBefore must be a valid RFC3339 timestamp")
		}
		dateRange.To = &ts
	}
	return dateRange, nil
}

func buildOrderListResponse(result domain.PagedResult[services.Order]) orderListResponse {
	orders := make([]orderSummaryPayload, 0, len(result.Items))
	for _, order := range result.Items {
		orders = append(orders, buildOrderSummary(order))
	}
	return orderListResponse{
		Orders:     orders,
		Total:      result.Total,
		Page:       result.Page,
		Limit:      result.Limit,
		TotalPages: result.TotalPages,
	}
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		Code:          order.Code,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.LastPaymentStatus),
		TotalAmount:   order.TotalAmount,
		TotalItems:    order.TotalItems,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		Code:              order.Code,
		UserID:            order.UserID,
		Status:            string(order.Status),
		PaymentMethod:     string(order.PaymentMethod),
		PayType:           string(order.PayType),
		TotalAmount:       order.TotalAmount,
		TotalItems:        order.TotalItems,
		VoucherID:         order.VoucherID,
		DeliveryAddressID: order.DeliveryAddressID,
		LastPaymentID:     order.LastPaymentID,
		LastPaymentStatus: string(order.LastPaymentStatus),
		Note:              order.Note,
		Items:             make([]orderItemPayload, 0, len(order.Items)),
		Payments:          buildPaymentPayloads(order.Payments),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		DeliveredAt:       formatTime(pointerTime(order.DeliveredAt)),
		CanceledAt:        formatTime(pointerTime(order.CanceledAt)),
		CancelReason:      order.CancelReason,
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			VariantID:  item.VariantID,
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Price:      item.Price,
		})
	}

	if order.ShippingAddress != nil {
		addr := buildAddressPayload(*order.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	if order.Voucher != nil {
		voucher := buildVoucherPayload(*order.Voucher)
		payload.Voucher = &voucher
	}
	if order.Installment != nil {
		payload.Installment = &installmentPayload{
			Count:           order.Installment.Count,
			NextPayDay:      formatTime(pointerTime(order.Installment.NextPayDay)),
			NextPayAmount:   order.Installment.NextPayAmount,
			Remaining:       order.Installment.Remaining,
			TotalPaidAmount: order.Installment.TotalPaidAmount,
		}
	}
	return payload
}

func buildPaymentPayloads(payments []services.Payment) []paymentPayload {
	if len(payments) == 0 {
		return nil
	}
	out := make([]paymentPayload, 0, len(payments))
	for _, payment := range payments {
		out = append(out, buildPaymentPayload(payment))
	}
	return out
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		Amount:         payment.Amount,
		Method:         string(payment.Method),
		Status:         string(payment.Status),
		TransactionRef: payment.TransactionRef,
		CreatedAt:      formatTime(payment.CreatedAt),
		UpdatedAt:      formatTime(payment.UpdatedAt),
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutStaleCart):
		httpx.WriteError(ctx, w, httpx.NewError("stale_cart", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutVoucherIneligible):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_ineligible", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
