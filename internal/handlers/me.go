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

const maxMeBodySize = 8 * 1024

// MeHandlers exposes profile and address-book endpoints for the
// authenticated user.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{authn: authn, users: users}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.updateProfile)
	r.Get("/addresses", h.listAddresses)
	r.Post("/addresses", h.createAddress)
	r.Put("/addresses/{addressID}", h.updateAddress)
	r.Delete("/addresses/{addressID}", h.deleteAddress)
	r.Post("/addresses/{addressID}:default", h.setDefaultAddress)
}

type updateProfileRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Language string `json:"language"`
}

type profilePayload struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName"`
	Phone     string   `json:"phone,omitempty"`
	Language  string   `json:"language,omitempty"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

type upsertAddressRequest struct {
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	City      string `json:"city"`
	IsDefault bool   `json:"isDefault"`
}

type addressPayload struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	City      string `json:"city"`
	IsDefault bool   `json:"isDefault"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSONBody(ctx, w, r, maxMeBodySize, &req) {
		return
	}

	profile, err := h.users.UpdateProfile(ctx, services.UpdateProfileCommand{
		UserID:   identity.UID,
		FullName: req.FullName,
		Phone:    req.Phone,
		Language: req.Language,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	addresses, err := h.users.ListAddresses(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addresses": payload})
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.upsertAddress(w, r, nil)
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}
	h.upsertAddress(w, r, &addressID)
}

func (h *MeHandlers) upsertAddress(w http.ResponseWriter, r *http.Request, addressID *string) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req upsertAddressRequest
	if !decodeJSONBody(ctx, w, r, maxMeBodySize, &req) {
		return
	}

	saved, err := h.users.UpsertAddress(ctx, services.UpsertAddressCommand{
		UserID:    identity.UID,
		AddressID: addressID,
		Address: services.Address{
			FullName:  strings.TrimSpace(req.FullName),
			Phone:     strings.TrimSpace(req.Phone),
			Line1:     strings.TrimSpace(req.Line1),
			Ward:      strings.TrimSpace(req.Ward),
			District:  strings.TrimSpace(req.District),
			City:      strings.TrimSpace(req.City),
			IsDefault: req.IsDefault,
		},
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if addressID == nil {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildAddressPayload(saved))
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}

	if err := h.users.DeleteAddress(ctx, identity.UID, addressID); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandlers) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}

	addr, err := h.users.SetDefaultAddress(ctx, identity.UID, addressID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(addr))
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	roles := profile.Roles
	if roles == nil {
		roles = []string{}
	}
	return profilePayload{
		ID:        profile.ID,
		Email:     profile.Email,
		FullName:  profile.FullName,
		Phone:     profile.Phone,
		Language:  profile.Language,
		Roles:     roles,
		CreatedAt: formatTime(profile.CreatedAt),
		UpdatedAt: formatTime(profile.UpdatedAt),
	}
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:        addr.ID,
		FullName:  addr.FullName,
		Phone:     addr.Phone,
		Line1:     addr.Line1,
		Ward:      addr.Ward,
		District:  addr.District,
		City:      addr.City,
		IsDefault: addr.IsDefault,
		CreatedAt: formatTime(addr.CreatedAt),
		UpdatedAt: formatTime(addr.UpdatedAt),
	}
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process profile request", http.StatusInternalServerError))
	}
}
