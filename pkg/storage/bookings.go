package storage

import (
	"context"

	"github.com/chris/neighborhood-packs/pkg/models"
)

// BookingReader defines the interface for reading bookings.
type BookingReader interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookingsByPack(ctx context.Context, packID string) ([]models.Booking, error)
	ListBookingsByBuyer(ctx context.Context, buyerID string) ([]models.Booking, error)
	ListBookingsBySeller(ctx context.Context, sellerID string) ([]models.Booking, error)
}

// BookingUpdate replaces the mutable state of a booking (status, validation
// flags, validated_at, updated_at). Booking.Version is the version the caller
// read; the write fails with ErrConflict if it moved. Packs are applied in the
// same atomic write.
type BookingUpdate struct {
	Booking *models.Booking
	Packs   []PackChange
}

// BookingStore defines the interface for creating and transitioning bookings.
type BookingStore interface {
	BookingReader

	// CreateBooking stores the booking and reserves its pack atomically.
	// A failed pack guard returns ErrPackUnavailable.
	CreateBooking(ctx context.Context, booking *models.Booking, pack PackChange) error

	// UpdateBooking applies the update atomically and increments Booking.Version on success.
	UpdateBooking(ctx context.Context, update BookingUpdate) error
}
