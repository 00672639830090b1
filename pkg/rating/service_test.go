package rating

import (
	"context"
	"testing"
	"time"

	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/chris/neighborhood-packs/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type notes struct{ got []models.Notification }

func (n *notes) Notify(_ context.Context, m models.Notification) { n.got = append(n.got, m) }

func seedBooking(t *testing.T, store *memory.Store, id, buyer, seller string, status models.BookingStatus) {
	t.Helper()
	p := &models.Pack{ID: "pack-" + id, OwnerID: seller, Status: models.PackAvailable, Version: 1}
	require.NoError(t, store.CreatePack(context.Background(), p))
	require.NoError(t, store.CreateBooking(context.Background(), &models.Booking{
		ID: id, PackID: p.ID, BuyerID: buyer, SellerID: seller, Status: status, Version: 1,
	}, storage.Reserve(p, "booking:"+id, start)))
}

func newService(t *testing.T) (*Service, *memory.Store, *notes) {
	t.Helper()
	store := memory.New()
	n := &notes{}
	return NewService(store, n, clock.NewManual(start)), store, n
}

func TestCreateRating(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, store, n := newService(t)
		seedBooking(t, store, "b1", "buyer", "seller", models.BookingCompleted)

		r, err := svc.CreateRating(ctx, "b1", "buyer", 5, " ¡Genial! ")
		require.NoError(t, err)
		assert.Equal(t, "seller", r.RatedTo)
		assert.Equal(t, "¡Genial!", r.Comment)
		require.Len(t, n.got, 1)
		assert.Equal(t, "seller", n.got[0].UserID)
		assert.Equal(t, models.NotifyRatingReceived, n.got[0].Type)

		_, err = svc.CreateRating(ctx, "b1", "buyer", 4, "")
		assert.ErrorIs(t, err, ErrAlreadyRated)
	})

	tests := []struct {
		name   string
		status models.BookingStatus
		rater  string
		score  int
		want   error
	}{
		{"Score Too Low", models.BookingCompleted, "buyer", 0, ErrInvalidScore},
		{"Score Too High", models.BookingCompleted, "buyer", 6, ErrInvalidScore},
		{"Not Completed", models.BookingConfirmed, "buyer", 4, ErrNotCompleted},
		{"Seller Rates", models.BookingCompleted, "seller", 4, ErrNotBuyer},
		{"Stranger Rates", models.BookingCompleted, "stranger", 4, ErrNotBuyer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, n := newService(t)
			seedBooking(t, store, "b1", "buyer", "seller", tt.status)

			_, err := svc.CreateRating(ctx, "b1", tt.rater, tt.score, "")
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, n.got)

			_, err = svc.GetRating(ctx, "b1")
			assert.ErrorIs(t, err, ErrRatingNotFound)
		})
	}

	t.Run("Unknown Booking", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, err := svc.CreateRating(ctx, "nope", "buyer", 3, "")
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}

func TestUpdateAndDeleteRating(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	seedBooking(t, store, "b1", "buyer", "seller", models.BookingCompleted)
	_, err := svc.CreateRating(ctx, "b1", "buyer", 2, "meh")
	require.NoError(t, err)

	_, err = svc.UpdateRating(ctx, "b1", "seller", 5, "")
	assert.ErrorIs(t, err, ErrNotRater)
	_, err = svc.UpdateRating(ctx, "b1", "buyer", 9, "")
	assert.ErrorIs(t, err, ErrInvalidScore)

	r, err := svc.UpdateRating(ctx, "b1", "buyer", 4, "better after all")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Score)

	got, err := svc.GetRating(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "better after all", got.Comment)

	assert.ErrorIs(t, svc.DeleteRating(ctx, "b1", "seller"), ErrNotRater)
	require.NoError(t, svc.DeleteRating(ctx, "b1", "buyer"))
	assert.ErrorIs(t, svc.DeleteRating(ctx, "b1", "buyer"), ErrRatingNotFound)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()

	t.Run("No Ratings", func(t *testing.T) {
		svc, _, _ := newService(t)
		stats, err := svc.GetStats(ctx, "seller")
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		assert.Zero(t, stats.Average)
		assert.Equal(t, [5]int{}, stats.Histogram)
	})

	t.Run("Aggregates", func(t *testing.T) {
		svc, store, _ := newService(t)
		for i, score := range []int{5, 4, 4, 1} {
			id := string(rune('a' + i))
			seedBooking(t, store, id, "buyer-"+id, "seller", models.BookingCompleted)
			_, err := svc.CreateRating(ctx, id, "buyer-"+id, score, "")
			require.NoError(t, err)
		}
		seedBooking(t, store, "other", "buyer", "someone-else", models.BookingCompleted)
		_, err := svc.CreateRating(ctx, "other", "buyer", 2, "")
		require.NoError(t, err)

		stats, err := svc.GetStats(ctx, "seller")
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Total)
		assert.InDelta(t, 3.5, stats.Average, 0.0001)
		assert.Equal(t, [5]int{1, 0, 0, 2, 1}, stats.Histogram)
	})
}
