package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chris/neighborhood-packs/pkg/apperr"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/notify"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/google/uuid"
)

var (
	ErrBookingNotFound = apperr.NotFound("booking not found")
	ErrRatingNotFound  = apperr.NotFound("rating not found")
	ErrInvalidScore    = apperr.Validation("score must be between 1 and 5")
	ErrAlreadyRated    = apperr.Validation("booking already rated")
	ErrNotCompleted    = apperr.InvalidState("only completed bookings can be rated")
	ErrNotBuyer        = apperr.Authorization("only the buyer can rate this booking")
	ErrNotRater        = apperr.Authorization("only the author can change this rating")
)

const (
	MinScore = 1
	MaxScore = 5
)

// Store is the storage the rating service needs.
type Store interface {
	storage.BookingReader
	storage.RatingStore
}

// Service lets buyers rate sellers of completed bookings.
type Service struct {
	store    Store
	notifier notify.Notifier
	clock    clock.Clock
}

// NewService creates a rating Service. A nil notifier or clock gets a default.
func NewService(store Store, notifier notify.Notifier, c clock.Clock) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &Service{store: store, notifier: notifier, clock: c}
}

// CreateRating records the buyer's score of the seller for a completed booking.
func (s *Service) CreateRating(ctx context.Context, bookingID, raterID string, score int, comment string) (*models.Rating, error) {
	if score < MinScore || score > MaxScore {
		return nil, ErrInvalidScore
	}
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking.BuyerID != raterID {
		return nil, ErrNotBuyer
	}
	if booking.Status != models.BookingCompleted {
		return nil, ErrNotCompleted
	}

	now := s.clock.Now()
	r := &models.Rating{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		RaterID:   raterID,
		RatedTo:   booking.SellerID,
		Score:     score,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRating(ctx, r); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrAlreadyRated
		}
		return nil, fmt.Errorf("failed to create rating: %w", err)
	}

	s.notifier.Notify(ctx, notify.New(now, r.RatedTo, models.NotifyRatingReceived,
		"New rating",
		fmt.Sprintf("You received %d of %d stars.", r.Score, MaxScore),
		"/bookings/"+r.BookingID,
		map[string]string{"booking_id": r.BookingID, "rating_id": r.ID}))
	return r, nil
}

// GetRating returns the rating of a booking.
func (s *Service) GetRating(ctx context.Context, bookingID string) (*models.Rating, error) {
	r, err := s.store.GetRatingByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRatingNotFound
		}
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return r, nil
}

// UpdateRating changes the score and comment. Only the author may do so.
func (s *Service) UpdateRating(ctx context.Context, bookingID, raterID string, score int, comment string) (*models.Rating, error) {
	if score < MinScore || score > MaxScore {
		return nil, ErrInvalidScore
	}
	r, err := s.GetRating(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if r.RaterID != raterID {
		return nil, ErrNotRater
	}

	r.Score = score
	r.Comment = strings.TrimSpace(comment)
	r.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateRating(ctx, r); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRatingNotFound
		}
		return nil, fmt.Errorf("failed to update rating: %w", err)
	}
	return r, nil
}

// DeleteRating removes the rating. Only the author may do so.
func (s *Service) DeleteRating(ctx context.Context, bookingID, raterID string) error {
	r, err := s.GetRating(ctx, bookingID)
	if err != nil {
		return err
	}
	if r.RaterID != raterID {
		return ErrNotRater
	}
	if err := s.store.DeleteRating(ctx, bookingID, raterID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRatingNotFound
		}
		return fmt.Errorf("failed to delete rating: %w", err)
	}
	return nil
}

// GetStats aggregates the ratings userID received. No ratings is not an
// error: the average is 0 and the histogram empty.
func (s *Service) GetStats(ctx context.Context, userID string) (*models.RatingStats, error) {
	ratings, err := s.store.ListRatingsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}

	stats := &models.RatingStats{UserID: userID}
	sum := 0
	for _, r := range ratings {
		if r.Score < MinScore || r.Score > MaxScore {
			continue
		}
		stats.Total++
		stats.Histogram[r.Score-1]++
		sum += r.Score
	}
	if stats.Total > 0 {
		stats.Average = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}
