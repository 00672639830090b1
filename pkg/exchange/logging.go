package exchange

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
	switch kind := apperr.KindOf(err); {
	case err == nil:
		log.Debug("exchange operation succeeded")
	case kind == apperr.KindInternal || kind == apperr.KindConsistency:
		log.Error("exchange operation failed", slog.Any("error", err))
	default:
		log.Info("exchange operation rejected", slog.String("kind", string(kind)), slog.String("reason", apperr.Message(err)))
	}
}

func (l *Logging) ProposeExchange(ctx context.Context, in ProposeInput) (x *models.Exchange, err error) {
	defer func(t0 time.Time) {
		logResult("propose_exchange", t0, err,
			slog.String("requester_id", in.RequesterID),
			slog.String("requested_pack_id", in.RequestedPackID),
			slog.String("offered_pack_id", in.OfferedPackID))
	}(time.Now())
	return l.Service.ProposeExchange(ctx, in)
}

func (l *Logging) AcceptExchange(ctx context.Context, exchangeID, ownerID, timeWindow string) (x *models.Exchange, err error) {
	defer func(t0 time.Time) {
		logResult("accept_exchange", t0, err, slog.String("exchange_id", exchangeID), slog.String("owner_id", ownerID))
	}(time.Now())
	return l.Service.AcceptExchange(ctx, exchangeID, ownerID, timeWindow)
}

func (l *Logging) RejectExchange(ctx context.Context, exchangeID, ownerID string) (x *models.Exchange, err error) {
	defer func(t0 time.Time) {
		logResult("reject_exchange", t0, err, slog.String("exchange_id", exchangeID), slog.String("owner_id", ownerID))
	}(time.Now())
	return l.Service.RejectExchange(ctx, exchangeID, ownerID)
}

func (l *Logging) CancelExchange(ctx context.Context, exchangeID, callerID string) (x *models.Exchange, err error) {
	defer func(t0 time.Time) {
		logResult("cancel_exchange", t0, err, slog.String("exchange_id", exchangeID), slog.String("caller_id", callerID))
	}(time.Now())
	return l.Service.CancelExchange(ctx, exchangeID, callerID)
}

func (l *Logging) ValidateByUser(ctx context.Context, exchangeID, userID, code string) (x *models.Exchange, completed bool, err error) {
	defer func(t0 time.Time) {
		logResult("validate_exchange", t0, err,
			slog.String("exchange_id", exchangeID),
			slog.String("user_id", userID),
			slog.String("code", "HIDDEN"),
			slog.Bool("completed", completed))
	}(time.Now())
	return l.Service.ValidateByUser(ctx, exchangeID, userID, code)
}

func (l *Logging) NotifyExpired(ctx context.Context) (n int, err error) {
	defer func(t0 time.Time) {
		logResult("notify_expired", t0, err, slog.Int("notified", n))
	}(time.Now())
	return l.Service.NotifyExpired(ctx)
}
