package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/booking"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/codes"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/packs"
	"github.com/chris/neighborhood-packs/pkg/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = "Hoy 15:00-18:00"

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	clk := clock.NewManual(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	bookings := booking.NewEngine(store, booking.WithClock(clk), booking.WithCodeGenerator(codes.Fixed("1234")))

	r := chi.NewRouter()
	r.Use(middleware.Identity)
	NewPacksHandler(packs.NewRegistry(store, clk), bookings, clk).Mount(r)
	// booking creation is needed to exercise booking-status
	r.Post("/bookings", func(w http.ResponseWriter, req *http.Request) {
		var in api.NewBooking
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		_, err := bookings.CreateBooking(req.Context(), booking.CreateInput{PackID: in.PackId, BuyerID: middleware.UserID(req.Context()), TimeWindow: in.TimeWindow})
		require.NoError(t, err)
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, &buf)
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createPack(t *testing.T, h http.Handler, owner string) api.Pack {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/packs", owner, api.NewPack{Title: "Bread", Price: 300, TimeWindows: []string{window}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[api.Pack](t, rr)
}

func TestCreatePack(t *testing.T) {
	h := newRouter(t)

	t.Run("success", func(t *testing.T) {
		pack := createPack(t, h, "alice")
		assert.Equal(t, "alice", pack.OwnerId)
		assert.Equal(t, "available", pack.Status)
		assert.Equal(t, []string{window}, pack.TimeWindows)
	})

	t.Run("validation error", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/packs", "alice", api.NewPack{Title: "Bread", Price: 300})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "at least one pickup time window is required", decode[api.Error](t, rr).Error)
	})

	t.Run("unknown field", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/packs", "alice", map[string]any{"title": "Bread", "color": "red"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing identity", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/packs", "", api.NewPack{Title: "Bread", TimeWindows: []string{window}})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetPack(t *testing.T) {
	h := newRouter(t)
	pack := createPack(t, h, "alice")

	rr := do(t, h, http.MethodGet, "/packs/"+pack.Id, "bob", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pack.Id, decode[api.Pack](t, rr).Id)

	rr = do(t, h, http.MethodGet, "/packs/not-a-uuid", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/packs/"+uuid.NewString(), "bob", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode[api.Error](t, rr).Code)
}

func TestListPacks(t *testing.T) {
	h := newRouter(t)
	createPack(t, h, "alice")
	createPack(t, h, "alice")
	createPack(t, h, "bob")

	rr := do(t, h, http.MethodGet, "/packs", "carol", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]api.Pack](t, rr), 3)

	rr = do(t, h, http.MethodGet, "/packs?limit=2", "carol", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]api.Pack](t, rr), 2)

	rr = do(t, h, http.MethodGet, "/packs?limit=abc", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/packs?limit=0", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/packs/mine", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]api.Pack](t, rr), 2)
}

func TestSetPackStatus(t *testing.T) {
	h := newRouter(t)
	pack := createPack(t, h, "alice")

	rr := do(t, h, http.MethodPatch, "/packs/"+pack.Id+"/status", "bob", api.PackStatusUpdate{Status: "archived"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodPatch, "/packs/"+pack.Id+"/status", "alice", api.PackStatusUpdate{Status: "sold"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPatch, "/packs/"+pack.Id+"/status", "alice", api.PackStatusUpdate{Status: "archived"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "archived", decode[api.Pack](t, rr).Status)
}

func TestDeletePack(t *testing.T) {
	h := newRouter(t)
	pack := createPack(t, h, "alice")

	rr := do(t, h, http.MethodDelete, "/packs/"+pack.Id, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodDelete, "/packs/"+pack.Id, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/packs/"+pack.Id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetBookingStatus(t *testing.T) {
	h := newRouter(t)
	pack := createPack(t, h, "alice")

	rr := do(t, h, http.MethodGet, "/packs/"+pack.Id+"/booking-status", "bob", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, api.PackBookingStatus{}, decode[api.PackBookingStatus](t, rr))

	rr = do(t, h, http.MethodPost, "/bookings", "bob", api.NewBooking{PackId: pack.Id, TimeWindow: window})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, h, http.MethodGet, "/packs/"+pack.Id+"/booking-status", "bob", nil)
	assert.Equal(t, api.PackBookingStatus{HasActiveBooking: true, IsBooked: true}, decode[api.PackBookingStatus](t, rr))

	rr = do(t, h, http.MethodGet, "/packs/"+pack.Id+"/booking-status", "carol", nil)
	assert.Equal(t, api.PackBookingStatus{HasActiveBooking: false, IsBooked: true}, decode[api.PackBookingStatus](t, rr))

	rr = do(t, h, http.MethodGet, "/packs/"+pack.Id, "carol", nil)
	assert.Equal(t, "reserved", decode[api.Pack](t, rr).Status)
}
