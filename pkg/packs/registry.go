package packs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chris/neighborhood-packs/pkg/apperr"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/google/uuid"
)

var (
	ErrPackNotFound      = apperr.NotFound("pack not found")
	ErrNotOwner          = apperr.Authorization("not the owner of this pack")
	ErrTitleRequired     = apperr.Validation("title is required")
	ErrInvalidPrice      = apperr.Validation("price must not be negative")
	ErrNoTimeWindows     = apperr.Validation("at least one pickup time window is required")
	ErrPackLocked        = apperr.InvalidState("pack is reserved or sold")
	ErrStatusNotAllowed  = apperr.Validation("status can only be set to available or archived")
	ErrActiveTransaction = apperr.Validation("pack has active transactions")
)

// CreatePackInput holds the owner-supplied fields of a new pack.
type CreatePackInput struct {
	OwnerID       string
	Title         string
	Description   string
	Category      string
	Price         int64
	OriginalPrice int64
	TimeWindows   []string
	ExpiresAt     *time.Time
}

// Registry owns pack listing and owner-driven status changes. Booking and
// exchange engines change pack status only inside their own atomic writes.
type Registry struct {
	store storage.ApiStore
	clock clock.Clock
}

// NewRegistry creates a Registry.
func NewRegistry(store storage.ApiStore, c clock.Clock) *Registry {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Registry{store: store, clock: c}
}

// CreatePack lists a new available pack owned by the caller.
func (r *Registry) CreatePack(ctx context.Context, in CreatePackInput) (*models.Pack, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if in.Price < 0 || in.OriginalPrice < 0 {
		return nil, ErrInvalidPrice
	}
	windows := make([]string, 0, len(in.TimeWindows))
	for _, w := range in.TimeWindows {
		if w = strings.TrimSpace(w); w != "" {
			windows = append(windows, w)
		}
	}
	if len(windows) == 0 {
		return nil, ErrNoTimeWindows
	}

	now := r.clock.Now()
	pack := &models.Pack{
		ID:            uuid.New().String(),
		OwnerID:       in.OwnerID,
		Title:         title,
		Description:   in.Description,
		Category:      in.Category,
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		Status:        models.PackAvailable,
		TimeWindows:   windows,
		ExpiresAt:     in.ExpiresAt,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.CreatePack(ctx, pack); err != nil {
		return nil, fmt.Errorf("failed to create pack: %w", err)
	}
	return pack, nil
}

// GetPack returns a pack by ID.
func (r *Registry) GetPack(ctx context.Context, packID string) (*models.Pack, error) {
	pack, err := r.store.GetPack(ctx, packID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPackNotFound
		}
		return nil, fmt.Errorf("failed to get pack: %w", err)
	}
	return pack, nil
}

// ListOwnerPacks returns the packs listed by ownerID.
func (r *Registry) ListOwnerPacks(ctx context.Context, ownerID string) ([]models.Pack, error) {
	packs, err := r.store.ListPacksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner packs: %w", err)
	}
	return packs, nil
}

// ListAvailable returns up to limit packs that can currently be booked or offered.
func (r *Registry) ListAvailable(ctx context.Context, limit int32) ([]models.Pack, error) {
	packs, err := r.store.ListAvailablePacks(ctx, r.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list available packs: %w", err)
	}
	return packs, nil
}

// Availability returns the effective status of a pack.
func (r *Registry) Availability(ctx context.Context, packID string) (models.PackStatus, error) {
	pack, err := r.GetPack(ctx, packID)
	if err != nil {
		return "", err
	}
	return pack.EffectiveStatus(r.clock.Now()), nil
}

// AssertOwnership fails with an authorization error unless userID owns the pack.
func (r *Registry) AssertOwnership(ctx context.Context, packID, userID string) error {
	pack, err := r.GetPack(ctx, packID)
	if err != nil {
		return err
	}
	if pack.OwnerID != userID {
		return ErrNotOwner
	}
	return nil
}

// SetStatus lets the owner archive or relist a pack that no transaction holds.
func (r *Registry) SetStatus(ctx context.Context, packID, ownerID string, status models.PackStatus) (*models.Pack, error) {
	if status != models.PackAvailable && status != models.PackArchived {
		return nil, ErrStatusNotAllowed
	}
	pack, err := r.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	if pack.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if pack.Status == models.PackReserved || pack.Status == models.PackSold {
		return nil, ErrPackLocked
	}
	if status == models.PackArchived {
		if err := r.assertNoActiveExchanges(ctx, packID); err != nil {
			return nil, err
		}
	}
	if pack.Status == status {
		return pack, nil
	}

	now := r.clock.Now()
	change := storage.PackChange{PackID: packID, From: pack.Status, To: status, Version: pack.Version, At: now}
	if err := r.store.UpdatePackStatus(ctx, change); err != nil {
		if errors.Is(err, storage.ErrPackUnavailable) {
			return nil, apperr.Consistency("pack was modified concurrently", err)
		}
		return nil, fmt.Errorf("failed to update pack status: %w", err)
	}
	pack.Status = status
	pack.Version++
	pack.UpdatedAt = now
	return pack, nil
}

// DeletePack removes a pack owned by the caller. Reserved packs and packs with
// an active exchange cannot be deleted.
func (r *Registry) DeletePack(ctx context.Context, packID, ownerID string) error {
	pack, err := r.GetPack(ctx, packID)
	if err != nil {
		return err
	}
	if pack.OwnerID != ownerID {
		return ErrNotOwner
	}
	if pack.Status == models.PackReserved {
		return ErrActiveTransaction
	}
	if err := r.assertNoActiveExchanges(ctx, packID); err != nil {
		return err
	}

	if err := r.store.DeletePack(ctx, packID, pack.Version); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Consistency("pack was modified concurrently", err)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return ErrPackNotFound
		}
		return fmt.Errorf("failed to delete pack: %w", err)
	}
	return nil
}

func (r *Registry) assertNoActiveExchanges(ctx context.Context, packID string) error {
	exchanges, err := r.store.ListExchangesByPack(ctx, packID)
	if err != nil {
		return fmt.Errorf("failed to list pack exchanges: %w", err)
	}
	now := r.clock.Now()
	for _, e := range exchanges {
		if e.Active(now) {
			return ErrActiveTransaction
		}
	}
	return nil
}
