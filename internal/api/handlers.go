package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/api/middleware"
	"github.com/example/checkout-engine/internal/domain/address"
	"github.com/example/checkout-engine/internal/domain/checkout"
	"github.com/example/checkout-engine/internal/domain/inventory"
	"github.com/example/checkout-engine/internal/domain/pricing"
	"github.com/example/checkout-engine/internal/domain/reservation"
)

type Handlers struct {
	manager *checkout.Manager
	logger  zerolog.Logger
}

func NewHandlers(manager *checkout.Manager, logger zerolog.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

type createSessionRequest struct {
	CartID          string                `json:"cart_id"`
	ShippingAddress address.Address       `json:"shipping_address"`
	BillingAddress  address.Address       `json:"billing_address"`
	ShippingMethod  string                `json:"shipping_method"`
	Customer        *pricing.CustomerInfo `json:"customer,omitempty"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CartID == "" {
		respondError(w, http.StatusBadRequest, "cart_id is required")
		return
	}
	if req.ShippingMethod == "" {
		respondError(w, http.StatusBadRequest, "shipping_method is required")
		return
	}

	summary, err := h.manager.CreateSession(r.Context(), checkout.CreateSessionInput{
		CartID:          req.CartID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingMethod:  req.ShippingMethod,
		Customer:        req.Customer,
		Actor:           actorFrom(r),
	})
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/checkout/session/")
	detail, err := h.manager.GetSession(r.Context(), id, actorFrom(r))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handlers) ReleaseSession(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(strings.TrimSuffix(r.URL.Path, "/release"), "/checkout/session/")
	if err := h.manager.ReleaseReservations(r.Context(), id, reservation.ReleaseReasonRequested); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type failSessionRequest struct {
	Reason string `json:"reason"`
}

// FailSession records a payment failure reported by the payment callback.
// The session keeps its holds; stock comes back via release or the sweep.
func (h *Handlers) FailSession(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(strings.TrimSuffix(r.URL.Path, "/fail"), "/checkout/session/")

	var req failSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}

	if err := h.manager.MarkFailed(r.Context(), id, req.Reason); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

func (h *Handlers) ConfirmSession(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(strings.TrimSuffix(r.URL.Path, "/confirm"), "/checkout/session/")
	if err := h.manager.ConfirmReservations(r.Context(), id); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func actorFrom(r *http.Request) checkout.Actor {
	return checkout.Actor{
		UserID:     middleware.UserID(r),
		GuestToken: middleware.GuestToken(r),
	}
}

// statusForError maps the domain error taxonomy to the REST contract.
func statusForError(err error) int {
	switch {
	case errors.Is(err, checkout.ErrCartNotFound),
		errors.Is(err, checkout.ErrNotFound),
		errors.Is(err, reservation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, checkout.ErrExpired),
		errors.Is(err, reservation.ErrExpired):
		return http.StatusGone
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrValidation),
		errors.Is(err, checkout.ErrAlreadyCompleted),
		errors.Is(err, checkout.ErrInvalidStatus),
		errors.Is(err, address.ErrInvalid),
		errors.Is(err, pricing.ErrShippingUnavailable),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, reservation.ErrInvalidQuantity),
		errors.Is(err, reservation.ErrNotActive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
}
