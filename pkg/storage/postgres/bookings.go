package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/jackc/pgx/v5"
)

// CreateBooking reserves the pack and inserts the booking in one transaction.
// The partial unique index on active bookings backs up the pack guard.
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking, pack storage.PackChange) error {
	const stmt = `
INSERT INTO bookings (` + bookingColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	return withTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.applyPackChange(ctx, pack); err != nil {
			return err
		}
		_, err := s.exec(ctx, stmt,
			booking.ID, booking.PackID, booking.BuyerID, booking.SellerID, booking.PickupCode, booking.TimeWindow,
			string(booking.Status), booking.ValidatedBySeller, booking.ValidatedByBuyer, booking.ValidatedAt,
			booking.Version, booking.CreatedAt, booking.UpdatedAt,
		)
		if err != nil {
			switch uniqueViolation(err) {
			case "":
				return fmt.Errorf("create booking: %w", err)
			case activeBookingIndex:
				return storage.ErrPackUnavailable
			default:
				return storage.ErrAlreadyExists
			}
		}
		return nil
	})
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := scanBooking(s.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

// listBookings filters on one column; column is always a constant from this file.
func (s *Store) listBookings(ctx context.Context, column, value string) ([]models.Booking, error) {
	rows, err := s.query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+column+` = $1 ORDER BY created_at DESC`, value)
	if err != nil {
		return nil, fmt.Errorf("list bookings by %s: %w", column, err)
	}
	bookings, err := collect(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("scan bookings: %w", err)
	}
	return bookings, nil
}

func (s *Store) ListBookingsByPack(ctx context.Context, packID string) ([]models.Booking, error) {
	return s.listBookings(ctx, "pack_id", packID)
}

func (s *Store) ListBookingsByBuyer(ctx context.Context, buyerID string) ([]models.Booking, error) {
	return s.listBookings(ctx, "buyer_id", buyerID)
}

func (s *Store) ListBookingsBySeller(ctx context.Context, sellerID string) ([]models.Booking, error) {
	return s.listBookings(ctx, "seller_id", sellerID)
}

func (s *Store) UpdateBooking(ctx context.Context, update storage.BookingUpdate) error {
	const stmt = `
UPDATE bookings
SET status = $2,
    validated_by_seller = $3,
    validated_by_buyer = $4,
    validated_at = $5,
    updated_at = $6,
    version = version + 1
WHERE id = $1 AND version = $7`

	b := update.Booking
	err := withTx(ctx, s.pool, func(ctx context.Context) error {
		tag, err := s.exec(ctx, stmt, b.ID, string(b.Status), b.ValidatedBySeller, b.ValidatedByBuyer, b.ValidatedAt, b.UpdatedAt, b.Version)
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrConflict
		}
		return s.applyPackChanges(ctx, update.Packs)
	})
	if err != nil {
		return err
	}
	b.Version++
	return nil
}
