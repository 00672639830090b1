package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/notify"
	"github.com/chris/neighborhood-packs/pkg/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(context.Background(), method, path, nil)
	req.Header.Set(middleware.UserIDHeader, user)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &notify.StoreSink{Store: store}
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	older := notify.New(at, "alice", models.NotifyBookingCreated, "New booking", "Your pack was booked", "/bookings/1", nil)
	newer := notify.New(at.Add(time.Minute), "alice", models.NotifyBookingCancelled, "Booking cancelled", "The buyer cancelled", "/bookings/1", map[string]string{"booking_id": "1"})
	other := notify.New(at, "bob", models.NotifyBookingCreated, "New booking", "Your pack was booked", "", nil)
	for _, n := range []models.Notification{older, newer, other} {
		require.NoError(t, sink.Send(ctx, n))
	}

	r := chi.NewRouter()
	r.Use(middleware.Identity)
	NewNotificationsHandler(store).Mount(r)

	rr := do(t, r, http.MethodGet, "/notifications", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []api.Notification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].Id, "newest first")
	assert.Equal(t, "1", list[0].Metadata["booking_id"])
	assert.False(t, list[0].Read)

	rr = do(t, r, http.MethodGet, "/notifications?limit=1", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rr = do(t, r, http.MethodGet, "/notifications?limit=500", "alice")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, r, http.MethodPost, "/notifications/"+other.ID+"/read", "alice")
	assert.Equal(t, http.StatusNotFound, rr.Code, "cannot mark someone else's notification")

	rr = do(t, r, http.MethodPost, "/notifications/"+uuid.NewString()+"/read", "alice")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, r, http.MethodPost, "/notifications/"+older.ID+"/read", "alice")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	stored, err := store.ListNotifications(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[1].Read)
	assert.False(t, stored[0].Read)
}
