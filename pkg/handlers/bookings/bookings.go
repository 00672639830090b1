package bookings

import (
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/booking"
	"github.com/chris/neighborhood-packs/pkg/handlers"
	"github.com/chris/neighborhood-packs/pkg/mapping"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/go-chi/chi/v5"
)

// BookingsHandler holds the dependencies for booking-related handlers.
type BookingsHandler struct {
	Bookings booking.Service
}

// NewBookingsHandler creates a new BookingsHandler.
func NewBookingsHandler(bookings booking.Service) *BookingsHandler {
	return &BookingsHandler{Bookings: bookings}
}

// Mount registers the booking routes.
func (h *BookingsHandler) Mount(r chi.Router) {
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings", h.ListBookings)
	r.Get("/bookings/{bookingId}", h.GetBookingById)
	r.Post("/bookings/{bookingId}/seller-validation", h.ValidateBySeller)
	r.Post("/bookings/{bookingId}/buyer-validation", h.ValidateByBuyer)
	r.Post("/bookings/{bookingId}/cancel", h.CancelBooking)
}

func (h *BookingsHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var newBooking api.NewBooking
	if !handlers.DecodeJSON(w, r, &newBooking) {
		return
	}

	callerID := middleware.UserID(r.Context())
	b, err := h.Bookings.CreateBooking(r.Context(), mapping.ToDomainNewBooking(&newBooking, callerID))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, mapping.ToApiBooking(b, callerID))
}

// ListBookings lists the caller's bookings as buyer (default) or seller.
func (h *BookingsHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	role := string(booking.RoleBuyer)
	if !handlers.QueryParam(w, r, "role", &role) {
		return
	}

	callerID := middleware.UserID(r.Context())
	list, err := h.Bookings.ListBookings(r.Context(), callerID, booking.Role(role))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiBookings(list, callerID))
}

func (h *BookingsHandler) GetBookingById(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	callerID := middleware.UserID(r.Context())
	b, err := h.Bookings.GetBooking(r.Context(), bookingID, callerID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiBooking(b, callerID))
}

// ValidateBySeller checks the pickup code the buyer shows at pickup.
func (h *BookingsHandler) ValidateBySeller(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	var body api.CodeValidation
	if !handlers.DecodeJSON(w, r, &body) {
		return
	}

	callerID := middleware.UserID(r.Context())
	b, err := h.Bookings.ValidateBySeller(r.Context(), bookingID, callerID, body.Code)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiBooking(b, callerID))
}

// ValidateByBuyer confirms receipt.
func (h *BookingsHandler) ValidateByBuyer(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	callerID := middleware.UserID(r.Context())
	b, err := h.Bookings.ValidateByBuyer(r.Context(), bookingID, callerID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiBooking(b, callerID))
}

func (h *BookingsHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	callerID := middleware.UserID(r.Context())
	b, err := h.Bookings.CancelBooking(r.Context(), bookingID, callerID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiBooking(b, callerID))
}
