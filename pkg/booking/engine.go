package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/neighborhood-packs/pkg/apperr"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/codes"
	"github.com/chris/neighborhood-packs/pkg/limiter"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/notify"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/google/uuid"
)

var (
	ErrBookingNotFound   = apperr.NotFound("booking not found")
	ErrPackNotFound      = apperr.NotFound("pack not found")
	ErrOwnPack           = apperr.Validation("cannot book your own pack")
	ErrAlreadyBooked     = apperr.Validation("you already have an active booking for this pack")
	ErrPackReserved      = apperr.Validation("pack already reserved")
	ErrPackUnavailable   = apperr.Validation("pack is not available")
	ErrInvalidTimeWindow = apperr.Validation("time window is not offered for this pack")
	ErrInvalidRole       = apperr.Validation("role must be buyer or seller")
	ErrNotSeller         = apperr.Authorization("only the seller can validate with the pickup code")
	ErrNotBuyer          = apperr.Authorization("only the buyer can perform this action")
	ErrNotParticipant    = apperr.Authorization("not a participant of this booking")
	ErrNotValidatable    = apperr.InvalidState("booking cannot be validated in its current status")
	ErrAlreadyValidated  = apperr.InvalidState("already validated")
	ErrNotCancellable    = apperr.InvalidState("only pending bookings can be cancelled")
	ErrReceiptConfirmed  = apperr.InvalidState("booking was already confirmed by the buyer")
	ErrInvalidCode       = apperr.InvalidCode("invalid pickup code")
	ErrTooManyAttempts   = apperr.RateLimited("too many invalid code attempts, try again later")
)

// maxAttempts bounds optimistic-lock retries of a transition.
const maxAttempts = 3

// Role selects which side of a booking a listing is for.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// CreateInput holds the parameters of a new booking.
type CreateInput struct {
	PackID     string
	BuyerID    string
	TimeWindow string
}

// Service is the booking state machine as seen by the HTTP layer.
type Service interface {
	CreateBooking(ctx context.Context, in CreateInput) (*models.Booking, error)
	ValidateBySeller(ctx context.Context, bookingID, sellerID, code string) (*models.Booking, error)
	ValidateByBuyer(ctx context.Context, bookingID, buyerID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, buyerID string) (*models.Booking, error)
	HasActiveBooking(ctx context.Context, packID, userID string) bool
	IsPackBooked(ctx context.Context, packID string) bool
	GetBooking(ctx context.Context, bookingID, callerID string) (*models.Booking, error)
	ListBookings(ctx context.Context, userID string, role Role) ([]models.Booking, error)
}

// Store is the storage the engine needs.
type Store interface {
	storage.PackReader
	storage.BookingStore
}

// Engine implements Service.
type Engine struct {
	store    Store
	notifier notify.Notifier
	attempts limiter.Attempts
	clock    clock.Clock
	codes    codes.Generator
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n notify.Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithAttempts(a limiter.Attempts) Option { return func(e *Engine) { e.attempts = a } }
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }
func WithCodeGenerator(g codes.Generator) Option { return func(e *Engine) { e.codes = g } }
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// NewEngine creates a booking Engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notify.Nop{},
		clock:    clock.NewSystem(),
		codes:    codes.Random,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Service = (*Engine)(nil)

// CreateBooking reserves an available pack for the buyer and issues a pickup code.
// The booking insert and the pack reservation commit together or not at all.
func (e *Engine) CreateBooking(ctx context.Context, in CreateInput) (*models.Booking, error) {
	pack, err := e.store.GetPack(ctx, in.PackID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPackNotFound
		}
		return nil, fmt.Errorf("failed to get pack: %w", err)
	}
	if pack.OwnerID == in.BuyerID {
		return nil, ErrOwnPack
	}

	existing, err := e.store.ListBookingsByPack(ctx, in.PackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pack bookings: %w", err)
	}
	for _, b := range existing {
		if b.Status.Active() && b.BuyerID == in.BuyerID {
			return nil, ErrAlreadyBooked
		}
	}
	for _, b := range existing {
		if b.Status.Active() {
			return nil, ErrPackReserved
		}
	}

	now := e.clock.Now()
	if !pack.IsAvailable(now) {
		if pack.Status == models.PackReserved {
			return nil, ErrPackReserved
		}
		return nil, ErrPackUnavailable
	}
	if !pack.HasTimeWindow(in.TimeWindow) {
		return nil, ErrInvalidTimeWindow
	}

	code, err := e.codes(codes.PickupDigits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate pickup code: %w", err)
	}

	booking := &models.Booking{
		ID:         uuid.New().String(),
		PackID:     pack.ID,
		BuyerID:    in.BuyerID,
		SellerID:   pack.OwnerID,
		PickupCode: code,
		TimeWindow: in.TimeWindow,
		Status:     models.BookingPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.store.CreateBooking(ctx, booking, storage.Reserve(pack, booking.Holder(), now)); err != nil {
		if errors.Is(err, storage.ErrPackUnavailable) {
			return nil, ErrPackReserved
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	e.notifier.Notify(ctx, notify.New(now, booking.SellerID, models.NotifyBookingCreated,
		"New booking",
		fmt.Sprintf("Your pack %q was booked for %s.", pack.Title, booking.TimeWindow),
		bookingLink(booking), bookingMeta(booking)))

	return booking, nil
}

// ValidateBySeller records the seller's pickup confirmation using the code the
// buyer presents. When the buyer already confirmed receipt, the booking
// completes and the pack is sold in the same write.
func (e *Engine) ValidateBySeller(ctx context.Context, bookingID, sellerID, code string) (*models.Booking, error) {
	attemptKey := "booking:" + bookingID + ":" + sellerID
	if e.limited(ctx, attemptKey) {
		return nil, ErrTooManyAttempts
	}

	var completed bool
	booking, err := e.transition(ctx, bookingID, func(b *models.Booking, now time.Time) ([]storage.PackChange, error) {
		completed = false
		if b.SellerID != sellerID {
			return nil, ErrNotSeller
		}
		if b.ValidatedBySeller {
			return nil, ErrAlreadyValidated
		}
		if b.Status != models.BookingPending {
			return nil, ErrNotValidatable
		}
		if b.PickupCode != code {
			return nil, ErrInvalidCode
		}

		b.ValidatedBySeller = true
		b.UpdatedAt = now
		if b.ValidatedByBuyer {
			completed = true
			return complete(b, now), nil
		}
		b.Status = models.BookingConfirmed
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			e.registerFailure(ctx, attemptKey)
		}
		return nil, err
	}

	if completed {
		e.notifyCompleted(ctx, booking)
	} else {
		e.notifier.Notify(ctx, notify.New(booking.UpdatedAt, booking.BuyerID, models.NotifyBookingSellerValidated,
			"Pickup confirmed by seller",
			"The seller confirmed the handover. Confirm receipt to complete the booking.",
			bookingLink(booking), bookingMeta(booking)))
	}
	return booking, nil
}

// ValidateByBuyer records the buyer's confirmation of receipt. It completes
// the booking when the seller already validated.
func (e *Engine) ValidateByBuyer(ctx context.Context, bookingID, buyerID string) (*models.Booking, error) {
	var completed bool
	booking, err := e.transition(ctx, bookingID, func(b *models.Booking, now time.Time) ([]storage.PackChange, error) {
		completed = false
		if b.BuyerID != buyerID {
			return nil, ErrNotBuyer
		}
		if b.ValidatedByBuyer {
			return nil, ErrAlreadyValidated
		}
		if !b.Status.Active() {
			return nil, ErrNotValidatable
		}

		b.ValidatedByBuyer = true
		b.UpdatedAt = now
		if b.ValidatedBySeller {
			completed = true
			return complete(b, now), nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		e.notifyCompleted(ctx, booking)
	} else {
		e.notifier.Notify(ctx, notify.New(booking.UpdatedAt, booking.SellerID, models.NotifyBookingBuyerValidated,
			"Receipt confirmed by buyer",
			"The buyer confirmed receipt. Enter the pickup code to complete the booking.",
			bookingLink(booking), bookingMeta(booking)))
	}
	return booking, nil
}

// CancelBooking lets the buyer withdraw a pending booking; the pack returns to
// available in the same write.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, buyerID string) (*models.Booking, error) {
	booking, err := e.transition(ctx, bookingID, func(b *models.Booking, now time.Time) ([]storage.PackChange, error) {
		if b.BuyerID != buyerID {
			return nil, ErrNotBuyer
		}
		if b.Status != models.BookingPending {
			return nil, ErrNotCancellable
		}
		if b.ValidatedByBuyer {
			return nil, ErrReceiptConfirmed
		}

		b.Status = models.BookingCancelled
		b.UpdatedAt = now
		return []storage.PackChange{storage.Release(b.PackID, b.Holder(), now)}, nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, notify.New(booking.UpdatedAt, booking.SellerID, models.NotifyBookingCancelled,
		"Booking cancelled",
		"The buyer cancelled the booking. Your pack is available again.",
		bookingLink(booking), bookingMeta(booking)))
	return booking, nil
}

// HasActiveBooking reports whether userID holds a pending or confirmed booking
// on the pack. Lookup failures are logged and reported as false.
func (e *Engine) HasActiveBooking(ctx context.Context, packID, userID string) bool {
	bookings, err := e.store.ListBookingsByPack(ctx, packID)
	if err != nil {
		e.logger.Error("failed to check active booking", slog.String("pack_id", packID), slog.Any("error", err))
		return false
	}
	for _, b := range bookings {
		if b.BuyerID == userID && b.Status.Active() {
			return true
		}
	}
	return false
}

// IsPackBooked reports whether anyone holds a pending or confirmed booking on
// the pack. Lookup failures are logged and reported as false.
func (e *Engine) IsPackBooked(ctx context.Context, packID string) bool {
	bookings, err := e.store.ListBookingsByPack(ctx, packID)
	if err != nil {
		e.logger.Error("failed to check pack bookings", slog.String("pack_id", packID), slog.Any("error", err))
		return false
	}
	for _, b := range bookings {
		if b.Status.Active() {
			return true
		}
	}
	return false
}

// GetBooking returns a booking to its buyer or seller.
func (e *Engine) GetBooking(ctx context.Context, bookingID, callerID string) (*models.Booking, error) {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.BuyerID != callerID && b.SellerID != callerID {
		return nil, ErrNotParticipant
	}
	return b, nil
}

// ListBookings returns the caller's bookings on the given side.
func (e *Engine) ListBookings(ctx context.Context, userID string, role Role) ([]models.Booking, error) {
	var (
		bookings []models.Booking
		err      error
	)
	switch role {
	case RoleBuyer:
		bookings, err = e.store.ListBookingsByBuyer(ctx, userID)
	case RoleSeller:
		bookings, err = e.store.ListBookingsBySeller(ctx, userID)
	default:
		return nil, ErrInvalidRole
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (e *Engine) getBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// transition reads the booking, lets apply mutate a copy and return the pack
// changes that must commit with it, and writes both atomically. A concurrent
// write to the booking re-runs apply on fresh state.
func (e *Engine) transition(ctx context.Context, bookingID string, apply func(b *models.Booking, now time.Time) ([]storage.PackChange, error)) (*models.Booking, error) {
	for attempt := 1; ; attempt++ {
		current, err := e.getBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}

		next := *current
		packs, err := apply(&next, e.clock.Now())
		if err != nil {
			return nil, err
		}

		err = e.store.UpdateBooking(ctx, storage.BookingUpdate{Booking: &next, Packs: packs})
		switch {
		case err == nil:
			return &next, nil
		case errors.Is(err, storage.ErrConflict):
			if attempt < maxAttempts {
				continue
			}
			return nil, apperr.Consistency("booking was modified concurrently", err)
		case errors.Is(err, storage.ErrPackMismatch), errors.Is(err, storage.ErrPackUnavailable):
			return nil, apperr.Consistency("pack state does not match the booking", err)
		default:
			return nil, fmt.Errorf("failed to update booking: %w", err)
		}
	}
}

// complete moves b to completed and returns the pack sale that must commit with it.
func complete(b *models.Booking, now time.Time) []storage.PackChange {
	b.Status = models.BookingCompleted
	b.ValidatedAt = &now
	return []storage.PackChange{storage.Sell(b.PackID, b.Holder(), now)}
}

func (e *Engine) notifyCompleted(ctx context.Context, b *models.Booking) {
	e.notifier.Notify(ctx, notify.New(b.UpdatedAt, b.SellerID, models.NotifyBookingCompleted,
		"Booking completed",
		"The pickup was confirmed by both sides. Your pack is sold.",
		bookingLink(b), bookingMeta(b)))
	e.notifier.Notify(ctx, notify.New(b.UpdatedAt, b.BuyerID, models.NotifyBookingCompleted,
		"Booking completed",
		"Enjoy your pack! You can now rate the seller.",
		bookingLink(b), bookingMeta(b)))
}

func (e *Engine) limited(ctx context.Context, key string) bool {
	if e.attempts == nil {
		return false
	}
	exceeded, err := e.attempts.Exceeded(ctx, key)
	if err != nil {
		e.logger.Error("failed to check code attempts", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return exceeded
}

func (e *Engine) registerFailure(ctx context.Context, key string) {
	if e.attempts == nil {
		return
	}
	if err := e.attempts.Fail(ctx, key); err != nil {
		e.logger.Error("failed to register code attempt", slog.String("key", key), slog.Any("error", err))
	}
}

func bookingLink(b *models.Booking) string {
	return "/bookings/" + b.ID
}

func bookingMeta(b *models.Booking) map[string]string {
	return map[string]string{"booking_id": b.ID, "pack_id": b.PackID}
}
