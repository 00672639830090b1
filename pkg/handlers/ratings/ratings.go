package ratings

import (
	"context"
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/handlers"
	"github.com/chris/neighborhood-packs/pkg/mapping"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/go-chi/chi/v5"
)

// Service is the subset of rating.Service used by the handlers.
type Service interface {
	CreateRating(ctx context.Context, bookingID, raterID string, score int, comment string) (*models.Rating, error)
	GetRating(ctx context.Context, bookingID string) (*models.Rating, error)
	UpdateRating(ctx context.Context, bookingID, raterID string, score int, comment string) (*models.Rating, error)
	DeleteRating(ctx context.Context, bookingID, raterID string) error
	GetStats(ctx context.Context, userID string) (*models.RatingStats, error)
}

// RatingsHandler holds the dependencies for rating-related handlers.
type RatingsHandler struct {
	Ratings Service
}

// NewRatingsHandler creates a new RatingsHandler.
func NewRatingsHandler(ratings Service) *RatingsHandler {
	return &RatingsHandler{Ratings: ratings}
}

// Mount registers the rating routes.
func (h *RatingsHandler) Mount(r chi.Router) {
	r.Post("/bookings/{bookingId}/rating", h.CreateRating)
	r.Get("/bookings/{bookingId}/rating", h.GetRating)
	r.Put("/bookings/{bookingId}/rating", h.UpdateRating)
	r.Delete("/bookings/{bookingId}/rating", h.DeleteRating)
	r.Get("/users/{userId}/rating-stats", h.GetRatingStats)
}

func (h *RatingsHandler) CreateRating(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	var body api.NewRating
	if !handlers.DecodeJSON(w, r, &body) {
		return
	}
	rating, err := h.Ratings.CreateRating(r.Context(), bookingID, middleware.UserID(r.Context()), body.Score, body.Comment)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, mapping.ToApiRating(rating))
}

func (h *RatingsHandler) GetRating(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	rating, err := h.Ratings.GetRating(r.Context(), bookingID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiRating(rating))
}

func (h *RatingsHandler) UpdateRating(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	var body api.NewRating
	if !handlers.DecodeJSON(w, r, &body) {
		return
	}
	rating, err := h.Ratings.UpdateRating(r.Context(), bookingID, middleware.UserID(r.Context()), body.Score, body.Comment)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiRating(rating))
}

func (h *RatingsHandler) DeleteRating(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	if err := h.Ratings.DeleteRating(r.Context(), bookingID, middleware.UserID(r.Context())); err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RatingsHandler) GetRatingStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlers.PathString(w, r, "userId")
	if !ok {
		return
	}
	stats, err := h.Ratings.GetStats(r.Context(), userID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiRatingStats(stats))
}
