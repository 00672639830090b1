package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/chris/neighborhood-packs/pkg/apperr"
	"github.com/chris/neighborhood-packs/pkg/models"
)

// Logging wraps a Service and logs every state-changing call.
type Logging struct {
	Service
}

var _ Service = (*Logging)(nil)

func logResult(op string, t0 time.Time, err error, attrs ...any) {
	log := slog.With(attrs...).With(slog.String("op", op), slog.String("delay", time.Since(t0).String()))
	switch {
	case err == nil:
		log.Debug("booking operation succeeded")
	case apperr.KindOf(err) == apperr.KindInternal || apperr.KindOf(err) == apperr.KindConsistency:
		log.Error("booking operation failed", slog.Any("error", err))
	default:
		log.Info("booking operation rejected", slog.String("kind", string(apperr.KindOf(err))), slog.String("reason", apperr.Message(err)))
	}
}

func (l *Logging) CreateBooking(ctx context.Context, in CreateInput) (b *models.Booking, err error) {
	defer func(t0 time.Time) {
		logResult("create_booking", t0, err, slog.String("pack_id", in.PackID), slog.String("buyer_id", in.BuyerID))
	}(time.Now())
	return l.Service.CreateBooking(ctx, in)
}

func (l *Logging) ValidateBySeller(ctx context.Context, bookingID, sellerID, code string) (b *models.Booking, err error) {
	defer func(t0 time.Time) {
		logResult("validate_by_seller", t0, err, slog.String("booking_id", bookingID), slog.String("seller_id", sellerID), slog.String("code", "HIDDEN"))
	}(time.Now())
	return l.Service.ValidateBySeller(ctx, bookingID, sellerID, code)
}

func (l *Logging) ValidateByBuyer(ctx context.Context, bookingID, buyerID string) (b *models.Booking, err error) {
	defer func(t0 time.Time) {
		logResult("validate_by_buyer", t0, err, slog.String("booking_id", bookingID), slog.String("buyer_id", buyerID))
	}(time.Now())
	return l.Service.ValidateByBuyer(ctx, bookingID, buyerID)
}

func (l *Logging) CancelBooking(ctx context.Context, bookingID, buyerID string) (b *models.Booking, err error) {
	defer func(t0 time.Time) {
		logResult("cancel_booking", t0, err, slog.String("booking_id", bookingID), slog.String("buyer_id", buyerID))
	}(time.Now())
	return l.Service.CancelBooking(ctx, bookingID, buyerID)
}
