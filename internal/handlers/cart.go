package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/platform/auth"
	"github.com/vietcart/api/internal/platform/httpx"
	"github.com/vietcart/api/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the per-user cart endpoints.
type CartHandlers struct {
	authn *auth.Authenticator
	cart  services.CartService
}

// NewCartHandlers constructs a new CartHandlers instance.
func NewCartHandlers(authn *auth.Authenticator, cart services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, cart: cart}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/items", h.listItems)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
}

type addCartItemRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartItemPayload struct {
	ID            string `json:"id"`
	VariantID     string `json:"variantId"`
	Quantity      int    `json:"quantity"`
	PriceSnapshot int64  `json:"priceSnapshot"`
	AddedAt       string `json:"addedAt"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

type cartLinePayload struct {
	Item    cartItemPayload    `json:"item"`
	Variant cartVariantPayload `json:"variant"`
}

type cartVariantPayload struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     int64   `json:"price"`
	Discount  float64 `json:"discount"`
	Stock     int     `json:"stock"`
	FinalUnit int64   `json:"finalUnitPrice"`
}

type cartListResponse struct {
	Items []cartLinePayload `json:"items"`
	Total int64             `json:"total"`
}

func (h *CartHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	lines, err := h.cart.ListItems(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	payload := cartListResponse{Items: make([]cartLinePayload, 0, len(lines))}
	for _, line := range lines {
		entry := buildCartLine(line)
		payload.Total += entry.Variant.FinalUnit * int64(line.Item.Quantity)
		payload.Items = append(payload.Items, entry)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req) {
		return
	}

	item, err := h.cart.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		VariantID: strings.TrimSpace(req.VariantID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartItem(item))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart item id is required", http.StatusBadRequest))
		return
	}

	var req updateCartItemRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req) {
		return
	}

	item, err := h.cart.UpdateQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UID,
		ItemID:   itemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartItem(item))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart item id is required", http.StatusBadRequest))
		return
	}

	if err := h.cart.RemoveItem(ctx, identity.UID, itemID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildCartItem(item services.CartItem) cartItemPayload {
	return cartItemPayload{
		ID:            item.ID,
		VariantID:     item.VariantID,
		Quantity:      item.Quantity,
		PriceSnapshot: item.PriceSnapshot,
		AddedAt:       formatTime(item.AddedAt),
		UpdatedAt:     formatTime(pointerTime(item.UpdatedAt)),
	}
}

func buildCartLine(line services.CartLine) cartLinePayload {
	return cartLinePayload{
		Item: buildCartItem(line.Item),
		Variant: cartVariantPayload{
			ID:        line.Variant.ID,
			Name:      line.Variant.Name,
			Price:     line.Variant.Price,
			Discount:  line.Variant.Discount,
			Stock:     line.Variant.Stock,
			FinalUnit: domain.FinalUnitPrice(line.Variant.Price, line.Variant.Discount),
		},
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

// requireIdentity extracts the authenticated principal or writes a 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// decodeJSONBody reads a size-capped JSON body into dst, writing the error
// response itself on failure.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}
