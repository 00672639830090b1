package postgres

import (
	"context"
	"fmt"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the Storage interface on Postgres. A write that couples a
// transaction record with pack changes runs in one pgx transaction, and each
// pack change is a conditional UPDATE whose RowsAffected decides the guard.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// Constraint names the unique violations are mapped on.
const activeBookingIndex = "bookings_one_active_per_pack"

// applyPackChange runs one guarded pack update. A row that does not match the
// guard leaves RowsAffected at zero.
func (s *Store) applyPackChange(ctx context.Context, c storage.PackChange) error {
	const stmt = `
UPDATE packs
SET status = $2,
    version = version + 1,
    updated_at = $3,
    reserved_by = CASE WHEN $2 = 'reserved' THEN $4 WHEN $2 = 'available' THEN '' ELSE reserved_by END
WHERE id = $1
  AND status = $5
  AND ($6::BIGINT = 0 OR version = $6)
  AND ($5 <> 'reserved' OR reserved_by = $4)`

	tag, err := s.exec(ctx, stmt, c.PackID, string(c.To), c.At, c.Holder, string(c.From), c.Version)
	if err != nil {
		return fmt.Errorf("update pack %s: %w", c.PackID, err)
	}
	if tag.RowsAffected() == 0 {
		return c.FailureErr()
	}
	return nil
}

func (s *Store) applyPackChanges(ctx context.Context, changes []storage.PackChange) error {
	for _, c := range changes {
		if err := s.applyPackChange(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
}

const packColumns = `id, owner_id, title, description, category, price, original_price, status,
time_windows, expires_at, reserved_by, version, created_at, updated_at`

func scanPack(row pgx.Row) (models.Pack, error) {
	var p models.Pack
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Category, &p.Price, &p.OriginalPrice,
		&p.Status, &p.TimeWindows, &p.ExpiresAt, &p.ReservedBy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const bookingColumns = `id, pack_id, buyer_id, seller_id, pickup_code, time_window, status,
validated_by_seller, validated_by_buyer, validated_at, version, created_at, updated_at`

func scanBooking(row pgx.Row) (models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.PackID, &b.BuyerID, &b.SellerID, &b.PickupCode, &b.TimeWindow, &b.Status,
		&b.ValidatedBySeller, &b.ValidatedByBuyer, &b.ValidatedAt, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

const exchangeColumns = `id, offered_pack_id, requested_pack_id, requester_id, owner_id, status,
selected_time_window, code, validated_by_requester, validated_by_owner, message, expires_at,
validated_at, expiry_notified_at, version, created_at, updated_at`

func scanExchange(row pgx.Row) (models.Exchange, error) {
	var x models.Exchange
	err := row.Scan(&x.ID, &x.OfferedPackID, &x.RequestedPackID, &x.RequesterID, &x.OwnerID, &x.Status,
		&x.SelectedTimeWindow, &x.Code, &x.ValidatedByRequester, &x.ValidatedByOwner, &x.Message, &x.ExpiresAt,
		&x.ValidatedAt, &x.ExpiryNotifiedAt, &x.Version, &x.CreatedAt, &x.UpdatedAt)
	return x, err
}

const ratingColumns = `id, booking_id, rater_id, rated_to, score, comment, created_at, updated_at`

func scanRating(row pgx.Row) (models.Rating, error) {
	var r models.Rating
	err := row.Scan(&r.ID, &r.BookingID, &r.RaterID, &r.RatedTo, &r.Score, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const notificationColumns = `id, user_id, type, title, message, link, metadata, read, created_at`

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.Metadata, &n.Read, &n.CreatedAt)
	return n, err
}
