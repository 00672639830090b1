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

func (s *Store) CreateExchange(ctx context.Context, exchange *models.Exchange, packs []storage.PackChange) error {
	const stmt = `
INSERT INTO exchanges (` + exchangeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	x := exchange
	return withTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.applyPackChanges(ctx, packs); err != nil {
			return err
		}
		_, err := s.exec(ctx, stmt,
			x.ID, x.OfferedPackID, x.RequestedPackID, x.RequesterID, x.OwnerID, string(x.Status),
			x.SelectedTimeWindow, x.Code, x.ValidatedByRequester, x.ValidatedByOwner, x.Message, x.ExpiresAt,
			x.ValidatedAt, x.ExpiryNotifiedAt, x.Version, x.CreatedAt, x.UpdatedAt,
		)
		if err != nil {
			if uniqueViolation(err) != "" {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("create exchange: %w", err)
		}
		return nil
	})
}

func (s *Store) GetExchange(ctx context.Context, exchangeID string) (*models.Exchange, error) {
	x, err := scanExchange(s.queryRow(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = $1`, exchangeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get exchange: %w", err)
	}
	return &x, nil
}

func (s *Store) listExchanges(ctx context.Context, where string, args ...any) ([]models.Exchange, error) {
	rows, err := s.query(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	exchanges, err := collect(rows, scanExchange)
	if err != nil {
		return nil, fmt.Errorf("scan exchanges: %w", err)
	}
	return exchanges, nil
}

func (s *Store) ListExchangesByPack(ctx context.Context, packID string) ([]models.Exchange, error) {
	return s.listExchanges(ctx, `offered_pack_id = $1 OR requested_pack_id = $1`, packID)
}

func (s *Store) ListExchangesByUser(ctx context.Context, userID string) ([]models.Exchange, error) {
	return s.listExchanges(ctx, `requester_id = $1 OR owner_id = $1`, userID)
}

func (s *Store) ListExpiredPendingExchanges(ctx context.Context, cutoff time.Time) ([]models.Exchange, error) {
	return s.listExchanges(ctx, `status = 'pending' AND expires_at < $1 AND expiry_notified_at IS NULL`, cutoff)
}

func (s *Store) UpdateExchange(ctx context.Context, update storage.ExchangeUpdate) error {
	const stmt = `
UPDATE exchanges
SET status = $2,
    selected_time_window = $3,
    validated_by_requester = $4,
    validated_by_owner = $5,
    validated_at = $6,
    updated_at = $7,
    version = version + 1
WHERE id = $1 AND version = $8`

	x := update.Exchange
	err := withTx(ctx, s.pool, func(ctx context.Context) error {
		tag, err := s.exec(ctx, stmt, x.ID, string(x.Status), x.SelectedTimeWindow, x.ValidatedByRequester,
			x.ValidatedByOwner, x.ValidatedAt, x.UpdatedAt, x.Version)
		if err != nil {
			return fmt.Errorf("update exchange: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrConflict
		}
		return s.applyPackChanges(ctx, update.Packs)
	})
	if err != nil {
		return err
	}
	x.Version++
	return nil
}

func (s *Store) MarkExchangeExpiryNotified(ctx context.Context, exchangeID string, at time.Time) error {
	tag, err := s.exec(ctx, `UPDATE exchanges SET expiry_notified_at = $2 WHERE id = $1 AND expiry_notified_at IS NULL`, exchangeID, at)
	if err != nil {
		return fmt.Errorf("mark exchange expiry notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}
