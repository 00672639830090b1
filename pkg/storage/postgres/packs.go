package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreatePack(ctx context.Context, pack *models.Pack) error {
	const stmt = `
INSERT INTO packs (` + packColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.exec(ctx, stmt,
		pack.ID, pack.OwnerID, pack.Title, pack.Description, pack.Category, pack.Price, pack.OriginalPrice,
		string(pack.Status), pack.TimeWindows, pack.ExpiresAt, pack.ReservedBy, pack.Version, pack.CreatedAt, pack.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) != "" {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create pack: %w", err)
	}
	return nil
}

func (s *Store) GetPack(ctx context.Context, packID string) (*models.Pack, error) {
	p, err := scanPack(s.queryRow(ctx, `SELECT `+packColumns+` FROM packs WHERE id = $1`, packID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pack: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPacksByOwner(ctx context.Context, ownerID string) ([]models.Pack, error) {
	rows, err := s.query(ctx, `SELECT `+packColumns+` FROM packs WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list packs by owner: %w", err)
	}
	packs, err := collect(rows, scanPack)
	if err != nil {
		return nil, fmt.Errorf("scan packs: %w", err)
	}
	return packs, nil
}

// ListAvailablePacks returns the newest unexpired available packs; a limit of zero means all.
func (s *Store) ListAvailablePacks(ctx context.Context, now time.Time, limit int32) ([]models.Pack, error) {
	rows, err := s.query(ctx, `
SELECT `+packColumns+`
FROM packs
WHERE status = 'available' AND (expires_at IS NULL OR expires_at > $1)
ORDER BY created_at DESC
LIMIT NULLIF($2::INT, 0)`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list available packs: %w", err)
	}
	packs, err := collect(rows, scanPack)
	if err != nil {
		return nil, fmt.Errorf("scan packs: %w", err)
	}
	return packs, nil
}

func (s *Store) UpdatePackStatus(ctx context.Context, change storage.PackChange) error {
	return s.applyPackChange(ctx, change)
}

// DeletePack removes the pack if the version still matches and it is not
// reserved.
func (s *Store) DeletePack(ctx context.Context, packID string, version int64) error {
	return withTx(ctx, s.pool, func(ctx context.Context) error {
		tag, err := s.exec(ctx, `DELETE FROM packs WHERE id = $1 AND version = $2 AND status <> 'reserved'`, packID, version)
		if err != nil {
			return fmt.Errorf("delete pack: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var exists bool
		if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM packs WHERE id = $1)`, packID).Scan(&exists); err != nil {
			return fmt.Errorf("check pack: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	})
}
