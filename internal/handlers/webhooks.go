package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vietcart/api/internal/platform/httpx"
	"github.com/vietcart/api/internal/services"
)

const (
	maxWebhookBodySize   = 16 * 1024
	webhookRateLimit     = 120
	webhookRateWindow    = time.Minute
	vnpayResponseOK      = "00"
	vnpayResponseInvalid = "97"
	vnpayResponseMissing = "01"
	vnpayResponseError   = "99"
)

// WebhookHandlers terminates payment gateway callbacks. These endpoints are
// unauthenticated; trust comes from the recomputed gateway signature.
type WebhookHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{
		payments: payments,
		limiter:  newSimpleRateLimiter(webhookRateLimit, webhookRateWindow, nil),
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/momo", h.momoIPN)
	r.Get("/payments/vnpay", h.vnpayReturn)
}

// momoIPN handles MoMo's server-to-server result notification. MoMo expects
// 204 on success and retries otherwise.
func (h *WebhookHandlers) momoIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	params, err := decodeMoMoParams(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	outcome, err := h.payments.HandleCallback(ctx, services.CallbackPayload{MoMo: params})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("callback_error", "failed to process callback", http.StatusInternalServerError))
		return
	}
	if !outcome.Success {
		httpx.WriteError(ctx, w, httpx.NewError("callback_rejected", outcome.Message, http.StatusBadRequest))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// vnpayReturn handles the VNPay redirect/IPN. VNPay reads a JSON body with
// RspCode semantics rather than HTTP status alone.
func (h *WebhookHandlers) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(r) {
		writeJSONResponse(w, http.StatusTooManyRequests, vnpayAck(vnpayResponseError, "Too many requests"))
		return
	}

	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 && strings.HasPrefix(key, "vnp_") {
			params[key] = values[0]
		}
	}
	if len(params) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, vnpayAck(vnpayResponseMissing, "Missing parameters"))
		return
	}

	outcome, err := h.payments.HandleCallback(ctx, services.CallbackPayload{VNPay: params})
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, vnpayAck(vnpayResponseError, "Internal error"))
		return
	}
	if !outcome.Success {
		writeJSONResponse(w, http.StatusOK, vnpayAck(vnpayResponseInvalid, outcome.Message))
		return
	}
	writeJSONResponse(w, http.StatusOK, vnpayAck(vnpayResponseOK, "Confirm success"))
}

func (h *WebhookHandlers) allow(r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(r.RemoteAddr)
}

func vnpayAck(code, message string) map[string]string {
	return map[string]string{"RspCode": code, "Message": message}
}

// decodeMoMoParams flattens the IPN JSON into the string map the signature
// check operates on, preserving the exact wire representation of numbers.
func decodeMoMoParams(body []byte) (map[string]string, error) {
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()

	raw := make(map[string]any)
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			params[key] = v
		case json.Number:
			params[key] = v.String()
		case bool:
			if v {
				params[key] = "true"
			} else {
				params[key] = "false"
			}
		case nil:
			params[key] = ""
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			params[key] = string(encoded)
		}
	}
	return params, nil
}
