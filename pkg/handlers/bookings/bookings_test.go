package bookings

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
	"github.com/chris/neighborhood-packs/pkg/limiter"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pickupCode = "4821"
	window     = "Hoy 15:00-18:00"
)

var start = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type fixture struct {
	router http.Handler
	packID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	packID := uuid.NewString()
	store.SetPack(models.Pack{
		ID: packID, OwnerID: "seller", Title: "Bread", Status: models.PackAvailable,
		TimeWindows: []string{window}, Version: 1, CreatedAt: start, UpdatedAt: start,
	})
	engine := booking.NewEngine(store,
		booking.WithClock(clock.NewManual(start)),
		booking.WithCodeGenerator(codes.Fixed(pickupCode)),
		booking.WithAttempts(limiter.NewLocal(2, time.Minute)))

	r := chi.NewRouter()
	r.Use(middleware.Identity)
	NewBookingsHandler(&booking.Logging{Service: engine}).Mount(r)
	return &fixture{router: r, packID: packID}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, &buf)
	req.Header.Set(middleware.UserIDHeader, user)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) book(t *testing.T) api.Booking {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/bookings", "buyer", api.NewBooking{PackId: f.packID, TimeWindow: window})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[api.Booking](t, rr)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)

	b := f.book(t)
	assert.Equal(t, "pending", b.Status)
	require.NotNil(t, b.PickupCode)
	assert.Equal(t, pickupCode, *b.PickupCode)

	testCases := []struct {
		name   string
		user   string
		body   api.NewBooking
		status int
		msg    string
	}{
		{"own pack", "seller", api.NewBooking{PackId: f.packID, TimeWindow: window}, http.StatusUnprocessableEntity, "cannot book your own pack"},
		{"already booked", "buyer", api.NewBooking{PackId: f.packID, TimeWindow: window}, http.StatusUnprocessableEntity, "you already have an active booking for this pack"},
		{"reserved", "other", api.NewBooking{PackId: f.packID, TimeWindow: window}, http.StatusUnprocessableEntity, "pack already reserved"},
		{"missing pack", "other", api.NewBooking{PackId: uuid.NewString(), TimeWindow: window}, http.StatusNotFound, "pack not found"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/bookings", tc.user, tc.body)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.msg, decode[api.Error](t, rr).Error)
		})
	}
}

func TestGetBooking(t *testing.T) {
	f := newFixture(t)
	b := f.book(t)

	rr := f.do(t, http.MethodGet, "/bookings/"+b.Id, "seller", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode[api.Booking](t, rr).PickupCode, "seller never sees the code")

	rr = f.do(t, http.MethodGet, "/bookings/"+b.Id, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodGet, "/bookings?role=seller", "seller", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]api.Booking](t, rr), 1)

	rr = f.do(t, http.MethodGet, "/bookings", "buyer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]api.Booking](t, rr), 1)

	rr = f.do(t, http.MethodGet, "/bookings?role=admin", "buyer", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	b := f.book(t)
	path := "/bookings/" + b.Id

	rr := f.do(t, http.MethodPost, path+"/seller-validation", "seller", api.CodeValidation{Code: "0000"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_code", decode[api.Error](t, rr).Code)

	rr = f.do(t, http.MethodPost, path+"/seller-validation", "buyer", api.CodeValidation{Code: pickupCode})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, path+"/seller-validation", "seller", api.CodeValidation{Code: pickupCode})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "confirmed", decode[api.Booking](t, rr).Status)

	rr = f.do(t, http.MethodPost, path+"/seller-validation", "seller", api.CodeValidation{Code: pickupCode})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, path+"/cancel", "buyer", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, path+"/buyer-validation", "buyer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[api.Booking](t, rr)
	assert.Equal(t, "completed", got.Status)
	assert.NotNil(t, got.ValidatedAt)
}

func TestTooManyAttempts(t *testing.T) {
	f := newFixture(t)
	b := f.book(t)
	path := "/bookings/" + b.Id + "/seller-validation"

	for range 2 {
		rr := f.do(t, http.MethodPost, path, "seller", api.CodeValidation{Code: "0000"})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr := f.do(t, http.MethodPost, path, "seller", api.CodeValidation{Code: pickupCode})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	b := f.book(t)

	rr := f.do(t, http.MethodPost, "/bookings/"+b.Id+"/cancel", "seller", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, "/bookings/"+b.Id+"/cancel", "buyer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancelled", decode[api.Booking](t, rr).Status)

	// the pack is free again
	rr = f.do(t, http.MethodPost, "/bookings", "other", api.NewBooking{PackId: f.packID, TimeWindow: window})
	assert.Equal(t, http.StatusCreated, rr.Code)
}
