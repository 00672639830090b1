package storage

import (
	"context"

	"github.com/chris/neighborhood-packs/pkg/models"
)

// RatingStore defines the interface for managing ratings. A booking has at most one rating.
type RatingStore interface {
	// CreateRating stores a rating, returning ErrAlreadyExists if the booking is already rated.
	CreateRating(ctx context.Context, rating *models.Rating) error

	// GetRatingByBooking retrieves the rating of a booking.
	GetRatingByBooking(ctx context.Context, bookingID string) (*models.Rating, error)

	// UpdateRating replaces score and comment; only the original rater's rating matches.
	UpdateRating(ctx context.Context, rating *models.Rating) error

	// DeleteRating removes the booking's rating if it belongs to raterID.
	DeleteRating(ctx context.Context, bookingID, raterID string) error

	// ListRatingsFor retrieves every rating a user received.
	ListRatingsFor(ctx context.Context, userID string) ([]models.Rating, error)
}
