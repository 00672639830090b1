package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
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
	ErrExchangeNotFound      = apperr.NotFound("exchange not found")
	ErrPackNotFound          = apperr.NotFound("pack not found")
	ErrSamePack              = apperr.Validation("cannot exchange a pack for itself")
	ErrNotYourPack           = apperr.Validation("not your pack")
	ErrSelfExchange          = apperr.Validation("cannot exchange with yourself")
	ErrRequestedUnavailable  = apperr.Validation("requested pack is not available")
	ErrOfferedUnavailable    = apperr.Validation("offered pack is not available")
	ErrDuplicateExchange     = apperr.Validation("you already have an active exchange for this pack")
	ErrOfferedInUse          = apperr.Validation("offered pack is already part of an active exchange")
	ErrPackNoLongerAvailable = apperr.Validation("pack no longer available")
	ErrTimeWindowRequired    = apperr.Validation("time window is required")
	ErrInvalidTimeWindow     = apperr.Validation("time window is not offered for the requested pack")
	ErrNotOwner              = apperr.Authorization("only the owner of the requested pack can do this")
	ErrNotParticipant        = apperr.Authorization("not a participant of this exchange")
	ErrOwnerMustReject       = apperr.Authorization("a pending proposal can only be rejected by its owner")
	ErrExpired               = apperr.InvalidState("exchange expired")
	ErrNotPending            = apperr.InvalidState("exchange is not pending")
	ErrNotAccepted           = apperr.InvalidState("exchange is not accepted")
	ErrNotCancellable        = apperr.InvalidState("exchange cannot be cancelled in its current status")
	ErrAlreadyValidated      = apperr.InvalidState("already validated")
	ErrInvalidCode           = apperr.InvalidCode("invalid exchange code")
	ErrTooManyAttempts       = apperr.RateLimited("too many invalid code attempts, try again later")
)

const (
	// DefaultTTL is how long a proposal stays actionable.
	DefaultTTL = 72 * time.Hour

	maxAttempts = 3
)

// ProposeInput holds the parameters of a new proposal.
type ProposeInput struct {
	RequesterID     string
	RequestedPackID string
	OfferedPackID   string
	Message         string
}

// Service is the exchange state machine as seen by the HTTP layer.
type Service interface {
	ProposeExchange(ctx context.Context, in ProposeInput) (*models.Exchange, error)
	AcceptExchange(ctx context.Context, exchangeID, ownerID, timeWindow string) (*models.Exchange, error)
	RejectExchange(ctx context.Context, exchangeID, ownerID string) (*models.Exchange, error)
	CancelExchange(ctx context.Context, exchangeID, callerID string) (*models.Exchange, error)
	ValidateByUser(ctx context.Context, exchangeID, userID, code string) (*models.Exchange, bool, error)
	GetExchange(ctx context.Context, exchangeID, callerID string) (*models.Exchange, error)
	ListExchanges(ctx context.Context, userID string) ([]models.Exchange, error)
	NotifyExpired(ctx context.Context) (int, error)
}

// Store is the storage the engine needs.
type Store interface {
	storage.PackReader
	storage.ExchangeStore
}

// Engine implements Service.
type Engine struct {
	store    Store
	notifier notify.Notifier
	attempts limiter.Attempts
	clock    clock.Clock
	codes    codes.Generator
	ttl      time.Duration
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n notify.Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithAttempts(a limiter.Attempts) Option { return func(e *Engine) { e.attempts = a } }
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }
func WithCodeGenerator(g codes.Generator) Option { return func(e *Engine) { e.codes = g } }
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithTTL sets how long proposals stay actionable. Non-positive values keep the default.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// NewEngine creates an exchange Engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notify.Nop{},
		clock:    clock.NewSystem(),
		codes:    codes.Random,
		ttl:      DefaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Service = (*Engine)(nil)

// ProposeExchange offers one of the requester's packs for somebody else's.
// Both packs stay available; their versions are bumped in the same write so
// that concurrent proposals, bookings and accepts on them serialize.
func (e *Engine) ProposeExchange(ctx context.Context, in ProposeInput) (*models.Exchange, error) {
	if in.OfferedPackID == in.RequestedPackID {
		return nil, ErrSamePack
	}

	for attempt := 1; ; attempt++ {
		ex, requested, err := e.propose(ctx, in)
		if errors.Is(err, storage.ErrPackUnavailable) {
			if attempt < maxAttempts {
				continue
			}
			return nil, apperr.Consistency("packs were modified concurrently", err)
		}
		if err != nil {
			return nil, err
		}

		e.notifier.Notify(ctx, notify.New(ex.CreatedAt, ex.OwnerID, models.NotifyExchangeProposed,
			"New exchange proposal",
			fmt.Sprintf("Someone wants to exchange a pack for your %q.", requested.Title),
			exchangeLink(ex), exchangeMeta(ex)))
		return ex, nil
	}
}

func (e *Engine) propose(ctx context.Context, in ProposeInput) (*models.Exchange, *models.Pack, error) {
	requested, err := e.getPack(ctx, in.RequestedPackID)
	if err != nil {
		return nil, nil, err
	}
	offered, err := e.getPack(ctx, in.OfferedPackID)
	if err != nil {
		return nil, nil, err
	}

	if offered.OwnerID != in.RequesterID {
		return nil, nil, ErrNotYourPack
	}
	if requested.OwnerID == in.RequesterID {
		return nil, nil, ErrSelfExchange
	}

	now := e.clock.Now()
	if !requested.IsAvailable(now) {
		return nil, nil, ErrRequestedUnavailable
	}
	if !offered.IsAvailable(now) {
		return nil, nil, ErrOfferedUnavailable
	}

	mine, err := e.store.ListExchangesByUser(ctx, in.RequesterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list user exchanges: %w", err)
	}
	for _, x := range mine {
		if x.Active(now) && x.References(requested.ID) {
			return nil, nil, ErrDuplicateExchange
		}
	}
	onOffered, err := e.store.ListExchangesByPack(ctx, offered.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pack exchanges: %w", err)
	}
	for _, x := range onOffered {
		if x.Active(now) {
			return nil, nil, ErrOfferedInUse
		}
	}

	code, err := e.codes(codes.ExchangeDigits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate exchange code: %w", err)
	}

	ex := &models.Exchange{
		ID:              uuid.New().String(),
		OfferedPackID:   offered.ID,
		RequestedPackID: requested.ID,
		RequesterID:     in.RequesterID,
		OwnerID:         requested.OwnerID,
		Status:          models.ExchangePending,
		Code:            code,
		Message:         strings.TrimSpace(in.Message),
		ExpiresAt:       now.Add(e.ttl),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	changes := []storage.PackChange{storage.Touch(offered, now), storage.Touch(requested, now)}
	if err := e.store.CreateExchange(ctx, ex, changes); err != nil {
		if errors.Is(err, storage.ErrPackUnavailable) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to create exchange: %w", err)
	}
	return ex, requested, nil
}

// AcceptExchange lets the requested pack's owner accept a pending proposal.
// Both packs are reserved in the same write as the status change; if either
// one was claimed meanwhile nothing changes.
func (e *Engine) AcceptExchange(ctx context.Context, exchangeID, ownerID, timeWindow string) (*models.Exchange, error) {
	timeWindow = strings.TrimSpace(timeWindow)
	ex, err := e.transition(ctx, exchangeID, func(x *models.Exchange, now time.Time) ([]storage.PackChange, error) {
		if x.OwnerID != ownerID {
			return nil, ErrNotOwner
		}
		switch x.State(now) {
		case models.ExchangePendingExpired:
			return nil, ErrExpired
		case models.ExchangeState(models.ExchangePending):
		default:
			return nil, ErrNotPending
		}
		if timeWindow == "" {
			return nil, ErrTimeWindowRequired
		}

		requested, err := e.getPack(ctx, x.RequestedPackID)
		if err != nil {
			return nil, err
		}
		offered, err := e.getPack(ctx, x.OfferedPackID)
		if err != nil {
			return nil, err
		}
		if !requested.IsAvailable(now) || !offered.IsAvailable(now) {
			return nil, ErrPackNoLongerAvailable
		}
		if len(requested.TimeWindows) > 0 && !requested.HasTimeWindow(timeWindow) {
			return nil, ErrInvalidTimeWindow
		}

		x.Status = models.ExchangeAccepted
		x.SelectedTimeWindow = timeWindow
		x.UpdatedAt = now
		return []storage.PackChange{
			storage.Reserve(offered, x.Holder(), now),
			storage.Reserve(requested, x.Holder(), now),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, notify.New(ex.UpdatedAt, ex.RequesterID, models.NotifyExchangeAccepted,
		"Exchange accepted",
		fmt.Sprintf("Your exchange proposal was accepted for %s.", ex.SelectedTimeWindow),
		exchangeLink(ex), exchangeMeta(ex)))
	return ex, nil
}

// RejectExchange lets the owner decline a pending proposal. The packs were
// never reserved, so they are left alone.
func (e *Engine) RejectExchange(ctx context.Context, exchangeID, ownerID string) (*models.Exchange, error) {
	ex, err := e.transition(ctx, exchangeID, func(x *models.Exchange, now time.Time) ([]storage.PackChange, error) {
		if x.OwnerID != ownerID {
			return nil, ErrNotOwner
		}
		switch x.State(now) {
		case models.ExchangePendingExpired:
			return nil, ErrExpired
		case models.ExchangeState(models.ExchangePending):
		default:
			return nil, ErrNotPending
		}

		x.Status = models.ExchangeRejected
		x.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, notify.New(ex.UpdatedAt, ex.RequesterID, models.NotifyExchangeRejected,
		"Exchange rejected",
		"Your exchange proposal was declined.",
		exchangeLink(ex), exchangeMeta(ex)))
	return ex, nil
}

// CancelExchange withdraws a proposal (requester only) or calls off an
// accepted exchange (either party). Cancelling an accepted exchange releases
// both packs in the same write.
func (e *Engine) CancelExchange(ctx context.Context, exchangeID, callerID string) (*models.Exchange, error) {
	ex, err := e.transition(ctx, exchangeID, func(x *models.Exchange, now time.Time) ([]storage.PackChange, error) {
		if !x.Involves(callerID) {
			return nil, ErrNotParticipant
		}

		var changes []storage.PackChange
		switch x.Status {
		case models.ExchangePending:
			if x.RequesterID != callerID {
				return nil, ErrOwnerMustReject
			}
		case models.ExchangeAccepted:
			changes = []storage.PackChange{
				storage.Release(x.OfferedPackID, x.Holder(), now),
				storage.Release(x.RequestedPackID, x.Holder(), now),
			}
		default:
			return nil, ErrNotCancellable
		}

		x.Status = models.ExchangeCancelled
		x.UpdatedAt = now
		return changes, nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, notify.New(ex.UpdatedAt, counterparty(ex, callerID), models.NotifyExchangeCancelled,
		"Exchange cancelled",
		"The other party cancelled the exchange.",
		exchangeLink(ex), exchangeMeta(ex)))
	return ex, nil
}

// ValidateByUser records the caller's handover confirmation with the shared
// code. The second confirmation completes the exchange and sells both packs in
// the same write; the returned bool reports whether that happened.
func (e *Engine) ValidateByUser(ctx context.Context, exchangeID, userID, code string) (*models.Exchange, bool, error) {
	attemptKey := "exchange:" + exchangeID + ":" + userID
	if e.limited(ctx, attemptKey) {
		return nil, false, ErrTooManyAttempts
	}

	var completed bool
	ex, err := e.transition(ctx, exchangeID, func(x *models.Exchange, now time.Time) ([]storage.PackChange, error) {
		completed = false
		if !x.Involves(userID) {
			return nil, ErrNotParticipant
		}
		if x.Status != models.ExchangeAccepted {
			return nil, ErrNotAccepted
		}
		isRequester := x.RequesterID == userID
		if (isRequester && x.ValidatedByRequester) || (!isRequester && x.ValidatedByOwner) {
			return nil, ErrAlreadyValidated
		}
		if x.Code != code {
			return nil, ErrInvalidCode
		}

		if isRequester {
			x.ValidatedByRequester = true
		} else {
			x.ValidatedByOwner = true
		}
		x.UpdatedAt = now
		if !x.ValidatedByRequester || !x.ValidatedByOwner {
			return nil, nil
		}

		completed = true
		x.Status = models.ExchangeCompleted
		x.ValidatedAt = &now
		return []storage.PackChange{
			storage.Sell(x.OfferedPackID, x.Holder(), now),
			storage.Sell(x.RequestedPackID, x.Holder(), now),
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			e.registerFailure(ctx, attemptKey)
		}
		return nil, false, err
	}

	if completed {
		for _, to := range []string{ex.RequesterID, ex.OwnerID} {
			e.notifier.Notify(ctx, notify.New(ex.UpdatedAt, to, models.NotifyExchangeCompleted,
				"Exchange completed",
				"Both sides confirmed the handover. Don't forget to leave a rating!",
				exchangeLink(ex), exchangeMeta(ex)))
		}
	} else {
		e.notifier.Notify(ctx, notify.New(ex.UpdatedAt, counterparty(ex, userID), models.NotifyExchangeValidated,
			"Handover confirmed",
			"The other party confirmed the handover. Confirm with the exchange code to complete it.",
			exchangeLink(ex), exchangeMeta(ex)))
	}
	return ex, completed, nil
}

// GetExchange returns an exchange to one of its parties.
func (e *Engine) GetExchange(ctx context.Context, exchangeID, callerID string) (*models.Exchange, error) {
	ex, err := e.getExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if !ex.Involves(callerID) {
		return nil, ErrNotParticipant
	}
	return ex, nil
}

// ListExchanges returns the exchanges the user proposed or received.
func (e *Engine) ListExchanges(ctx context.Context, userID string) ([]models.Exchange, error) {
	list, err := e.store.ListExchangesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	return list, nil
}

// NotifyExpired announces pending proposals whose expiry passed. Each one is
// stamped before notifying so that overlapping runs announce it only once.
// The stored status stays pending.
func (e *Engine) NotifyExpired(ctx context.Context) (int, error) {
	now := e.clock.Now()
	expired, err := e.store.ListExpiredPendingExchanges(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired exchanges: %w", err)
	}

	var (
		notified int
		errs     []error
	)
	for i := range expired {
		ex := &expired[i]
		if err := e.store.MarkExchangeExpiryNotified(ctx, ex.ID, now); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to mark exchange %s: %w", ex.ID, err))
			continue
		}
		for _, to := range []string{ex.RequesterID, ex.OwnerID} {
			e.notifier.Notify(ctx, notify.New(now, to, models.NotifyExchangeExpired,
				"Exchange expired",
				"The exchange proposal expired without an answer.",
				exchangeLink(ex), exchangeMeta(ex)))
		}
		notified++
	}
	return notified, errors.Join(errs...)
}

func (e *Engine) getExchange(ctx context.Context, exchangeID string) (*models.Exchange, error) {
	ex, err := e.store.GetExchange(ctx, exchangeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrExchangeNotFound
		}
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}
	return ex, nil
}

func (e *Engine) getPack(ctx context.Context, packID string) (*models.Pack, error) {
	p, err := e.store.GetPack(ctx, packID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPackNotFound
		}
		return nil, fmt.Errorf("failed to get pack: %w", err)
	}
	return p, nil
}

// transition reads the exchange, lets apply mutate a copy and return the pack
// changes that must commit with it, and writes both atomically. A concurrent
// write to the exchange or to a pack leaving available re-runs apply on fresh
// state.
func (e *Engine) transition(ctx context.Context, exchangeID string, apply func(x *models.Exchange, now time.Time) ([]storage.PackChange, error)) (*models.Exchange, error) {
	for attempt := 1; ; attempt++ {
		current, err := e.getExchange(ctx, exchangeID)
		if err != nil {
			return nil, err
		}

		next := *current
		packs, err := apply(&next, e.clock.Now())
		if err != nil {
			return nil, err
		}

		err = e.store.UpdateExchange(ctx, storage.ExchangeUpdate{Exchange: &next, Packs: packs})
		switch {
		case err == nil:
			return &next, nil
		case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrPackUnavailable):
			if attempt < maxAttempts {
				continue
			}
			return nil, apperr.Consistency("exchange was modified concurrently", err)
		case errors.Is(err, storage.ErrPackMismatch):
			return nil, apperr.Consistency("pack state does not match the exchange", err)
		default:
			return nil, fmt.Errorf("failed to update exchange: %w", err)
		}
	}
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

func counterparty(ex *models.Exchange, userID string) string {
	if ex.RequesterID == userID {
		return ex.OwnerID
	}
	return ex.RequesterID
}

func exchangeLink(ex *models.Exchange) string {
	return "/exchanges/" + ex.ID
}

func exchangeMeta(ex *models.Exchange) map[string]string {
	return map[string]string{
		"exchange_id":       ex.ID,
		"offered_pack_id":   ex.OfferedPackID,
		"requested_pack_id": ex.RequestedPackID,
	}
}
