package storage

import (
	"context"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
)

// PackReader defines the interface for reading packs.
type PackReader interface {
	// GetPack retrieves a pack by its ID.
	GetPack(ctx context.Context, packID string) (*models.Pack, error)

	// ListPacksByOwner retrieves all packs listed by a user.
	ListPacksByOwner(ctx context.Context, ownerID string) ([]models.Pack, error)

	// ListAvailablePacks retrieves up to limit packs that are available and not
	// expired at now, newest first. A limit of zero means all.
	ListAvailablePacks(ctx context.Context, now time.Time, limit int32) ([]models.Pack, error)
}

// PackStore defines the owner-driven pack operations.
// Transaction engines never change pack status through it.
type PackStore interface {
	PackReader

	// CreatePack stores a new pack.
	CreatePack(ctx context.Context, pack *models.Pack) error

	// UpdatePackStatus applies a single guarded status change.
	UpdatePackStatus(ctx context.Context, change PackChange) error

	// DeletePack removes a pack if it still has the given version and is not reserved.
	DeletePack(ctx context.Context, packID string, version int64) error
}
