package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/jackc/pgx/v5"
)

// Ratings are keyed by booking_id, so a second rating of the same booking is a
// primary key violation.

func (s *Store) CreateRating(ctx context.Context, rating *models.Rating) error {
	const stmt = `
INSERT INTO ratings (` + ratingColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	r := rating
	_, err := s.exec(ctx, stmt, r.ID, r.BookingID, r.RaterID, r.RatedTo, r.Score, r.Comment, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if uniqueViolation(err) != "" {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

func (s *Store) GetRatingByBooking(ctx context.Context, bookingID string) (*models.Rating, error) {
	r, err := scanRating(s.queryRow(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE booking_id = $1`, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get rating: %w", err)
	}
	return &r, nil
}

func (s *Store) UpdateRating(ctx context.Context, rating *models.Rating) error {
	tag, err := s.exec(ctx, `
UPDATE ratings SET score = $3, comment = $4, updated_at = $5
WHERE booking_id = $1 AND rater_id = $2`,
		rating.BookingID, rating.RaterID, rating.Score, rating.Comment, rating.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRating(ctx context.Context, bookingID, raterID string) error {
	tag, err := s.exec(ctx, `DELETE FROM ratings WHERE booking_id = $1 AND rater_id = $2`, bookingID, raterID)
	if err != nil {
		return fmt.Errorf("delete rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListRatingsFor(ctx context.Context, userID string) ([]models.Rating, error) {
	rows, err := s.query(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE rated_to = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	ratings, err := collect(rows, scanRating)
	if err != nil {
		return nil, fmt.Errorf("scan ratings: %w", err)
	}
	return ratings, nil
}
