package storage

import (
	"context"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
)

// ExchangeReader defines the interface for reading exchanges.
type ExchangeReader interface {
	GetExchange(ctx context.Context, exchangeID string) (*models.Exchange, error)

	// ListExchangesByPack retrieves exchanges referencing the pack in either slot.
	ListExchangesByPack(ctx context.Context, packID string) ([]models.Exchange, error)

	// ListExchangesByUser retrieves exchanges where the user is requester or owner.
	ListExchangesByUser(ctx context.Context, userID string) ([]models.Exchange, error)

	// ListExpiredPendingExchanges retrieves pending exchanges with expires_at before
	// cutoff whose expiry has not been announced yet.
	ListExpiredPendingExchanges(ctx context.Context, cutoff time.Time) ([]models.Exchange, error)
}

// ExchangeUpdate replaces the mutable state of an exchange (status, selected
// time window, validation flags, validated_at, updated_at) under the same rules
// as BookingUpdate.
type ExchangeUpdate struct {
	Exchange *models.Exchange
	Packs    []PackChange
}

// ExchangeStore defines the interface for creating and transitioning exchanges.
type ExchangeStore interface {
	ExchangeReader

	// CreateExchange stores the exchange and applies the pack changes atomically.
	CreateExchange(ctx context.Context, exchange *models.Exchange, packs []PackChange) error

	// UpdateExchange applies the update atomically and increments Exchange.Version on success.
	UpdateExchange(ctx context.Context, update ExchangeUpdate) error

	// MarkExchangeExpiryNotified stamps expiry_notified_at once; a second call returns ErrConflict.
	MarkExchangeExpiryNotified(ctx context.Context, exchangeID string, at time.Time) error
}
