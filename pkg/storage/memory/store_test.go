package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func seedPack(t *testing.T, s *Store, id string) *models.Pack {
	t.Helper()
	p := &models.Pack{ID: id, OwnerID: "seller", Title: "Bread", Status: models.PackAvailable, Version: 1, TimeWindows: []string{"w"}, CreatedAt: now}
	require.NoError(t, s.CreatePack(context.Background(), p))
	return p
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		s := New()
		p := seedPack(t, s, "p1")
		b := &models.Booking{ID: "b1", PackID: "p1", Status: models.BookingPending, Version: 1}

		err := s.CreateBooking(ctx, b, storage.Reserve(p, b.Holder(), now))

		require.NoError(t, err)
		got, _ := s.GetPack(ctx, "p1")
		assert.Equal(t, models.PackReserved, got.Status)
		assert.Equal(t, "booking:b1", got.ReservedBy)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("Stale Version Writes Nothing", func(t *testing.T) {
		s := New()
		p := seedPack(t, s, "p1")
		require.NoError(t, s.UpdatePackStatus(ctx, storage.Touch(p, now)))
		b := &models.Booking{ID: "b1", PackID: "p1", Status: models.BookingPending, Version: 1}

		err := s.CreateBooking(ctx, b, storage.Reserve(p, b.Holder(), now))

		assert.ErrorIs(t, err, storage.ErrPackUnavailable)
		_, err = s.GetBooking(ctx, "b1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestUpdateBooking(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := seedPack(t, s, "p1")
	b := &models.Booking{ID: "b1", PackID: "p1", Status: models.BookingPending, Version: 1}
	require.NoError(t, s.CreateBooking(ctx, b, storage.Reserve(p, b.Holder(), now)))

	t.Run("Wrong Holder Is A Mismatch", func(t *testing.T) {
		next := *b
		next.Status = models.BookingCancelled
		err := s.UpdateBooking(ctx, storage.BookingUpdate{Booking: &next, Packs: []storage.PackChange{storage.Release("p1", "booking:other", now)}})

		assert.ErrorIs(t, err, storage.ErrPackMismatch)
		got, _ := s.GetBooking(ctx, "b1")
		assert.Equal(t, models.BookingPending, got.Status)
	})

	t.Run("Stale Booking Version", func(t *testing.T) {
		next := *b
		next.Version = 7
		err := s.UpdateBooking(ctx, storage.BookingUpdate{Booking: &next})
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("Release", func(t *testing.T) {
		next := *b
		next.Status = models.BookingCancelled
		err := s.UpdateBooking(ctx, storage.BookingUpdate{Booking: &next, Packs: []storage.PackChange{storage.Release("p1", b.Holder(), now)}})

		require.NoError(t, err)
		assert.Equal(t, int64(2), next.Version)
		got, _ := s.GetPack(ctx, "p1")
		assert.Equal(t, models.PackAvailable, got.Status)
		assert.Empty(t, got.ReservedBy)
	})
}

func TestCreateExchangeAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedPack(t, s, "a")
	bPack := seedPack(t, s, "b")
	s.SetPack(models.Pack{ID: "b", OwnerID: "seller", Status: models.PackReserved, Version: 2})

	e := &models.Exchange{ID: "e1", OfferedPackID: "a", RequestedPackID: "b", Status: models.ExchangePending, Version: 1}
	err := s.CreateExchange(ctx, e, []storage.PackChange{storage.Touch(a, now), storage.Touch(bPack, now)})

	assert.ErrorIs(t, err, storage.ErrPackUnavailable)
	got, _ := s.GetPack(ctx, "a")
	assert.Equal(t, int64(1), got.Version)
}

func TestMarkExchangeExpiryNotified(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := &models.Exchange{ID: "e1", Status: models.ExchangePending, ExpiresAt: now.Add(-time.Hour), Version: 1}
	require.NoError(t, s.CreateExchange(ctx, e, nil))

	expired, err := s.ListExpiredPendingExchanges(ctx, now)
	require.NoError(t, err)
	assert.Len(t, expired, 1)

	require.NoError(t, s.MarkExchangeExpiryNotified(ctx, "e1", now))
	assert.ErrorIs(t, s.MarkExchangeExpiryNotified(ctx, "e1", now), storage.ErrConflict)

	expired, _ = s.ListExpiredPendingExchanges(ctx, now)
	assert.Empty(t, expired)
}

func TestRatingsAndNotifications(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &models.Rating{ID: "r1", BookingID: "b1", RaterID: "buyer", RatedTo: "seller", Score: 4}
	require.NoError(t, s.CreateRating(ctx, r))
	assert.ErrorIs(t, s.CreateRating(ctx, &models.Rating{ID: "r2", BookingID: "b1"}), storage.ErrAlreadyExists)
	assert.ErrorIs(t, s.DeleteRating(ctx, "b1", "someone"), storage.ErrNotFound)

	n := &models.Notification{ID: "n1", UserID: "seller", CreatedAt: now}
	require.NoError(t, s.SaveNotification(ctx, n))
	assert.ErrorIs(t, s.SaveNotification(ctx, n), storage.ErrAlreadyExists)
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "buyer", "n1"), storage.ErrNotFound)
	require.NoError(t, s.MarkNotificationRead(ctx, "seller", "n1"))

	list, err := s.ListNotifications(ctx, "seller", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
}
