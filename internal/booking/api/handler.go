package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-bookings/internal/auth"
	"ms-bookings/internal/booking"
	"ms-bookings/internal/models"
	"ms-bookings/internal/utils"
)

type Handler struct {
	BookingService *booking.Service
}

// CreateBooking handles POST /api/v1/bookings. The money invariant is checked
// by the service; a violation comes back as a 400.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	b, err := h.BookingService.CreateBooking(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Could not create booking", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", b))
}

// ApplyTransition handles POST /api/v1/bookings/{bookingId}/transitions. The
// actor comes from the verified token, the role from the request context set
// by the auth middleware. Retries are made safe by the idempotency middleware
// wrapping this route.
func (h *Handler) ApplyTransition(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	actorID, ok := auth.ActorIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing actor identity"))
		return
	}
	role, ok := auth.ActorRoleFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing actor role"))
		return
	}

	var req models.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	b, err := h.BookingService.ApplyTransition(r.Context(), bookingID, actorID, role, booking.Transition(req.Transition), req.Reason)
	if err != nil {
		status, message := transitionErrorStatus(err)
		writeJSON(w, status, utils.ErrorResponse(message, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Transition applied", b))
}

// AutoConfirm handles POST /internal/v1/bookings/{bookingId}/auto-confirm,
// called by the external scheduler once the post-completion grace period has
// elapsed. The scheduler authenticates with a service token carrying the
// system role; the transition itself is the same one the customer uses.
func (h *Handler) AutoConfirm(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
		return
	}
	_, role, err := auth.ExtractActorFromJWT(token)
	if err != nil || role != models.RoleSystem {
		writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "auto-confirm requires the system role"))
		return
	}

	b, err := h.BookingService.AutoConfirm(r.Context(), bookingID)
	if err != nil {
		status, message := transitionErrorStatus(err)
		writeJSON(w, status, utils.ErrorResponse(message, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking auto-confirmed", b))
}

// GetBooking handles GET /api/v1/bookings/{bookingId}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.BookingService.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load booking", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking", b))
}

// GetHistory handles GET /api/v1/bookings/{bookingId}/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	rows, err := h.BookingService.GetHistory(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load history", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking history", rows))
}

func transitionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "Booking not found"
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden, "Actor not permitted"
	case errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusConflict, "Invalid transition"
	case errors.Is(err, booking.ErrPaymentFailed):
		return http.StatusPaymentRequired, "Payment failed"
	case errors.Is(err, booking.ErrSettlementFailed):
		// Pre-terminal and retryable: the caller should try again.
		return http.StatusBadGateway, "Settlement failed"
	default:
		return http.StatusInternalServerError, "Transition failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
