package main

import (
	"log/slog"
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/booking"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/exchange"
	"github.com/chris/neighborhood-packs/pkg/handlers"
	"github.com/chris/neighborhood-packs/pkg/handlers/bookings"
	"github.com/chris/neighborhood-packs/pkg/handlers/exchanges"
	"github.com/chris/neighborhood-packs/pkg/handlers/notifications"
	packhandlers "github.com/chris/neighborhood-packs/pkg/handlers/packs"
	"github.com/chris/neighborhood-packs/pkg/handlers/ratings"
	wshandlers "github.com/chris/neighborhood-packs/pkg/handlers/websockets"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/chris/neighborhood-packs/pkg/websockets"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services is everything the router mounts.
type Services struct {
	Registry      packhandlers.Registry
	Bookings      booking.Service
	Exchanges     exchange.Service
	Ratings       ratings.Service
	Notifications storage.NotificationReader
	Connections   websockets.ConnectionManager
	Clock         clock.Clock
	Logger        *slog.Logger
}

// NewRouter builds the HTTP API. Everything but /health requires a caller identity.
func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewStructuredLogger(s.Logger))

	r.Get("/health", handlers.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)

		packhandlers.NewPacksHandler(s.Registry, s.Bookings, s.Clock).Mount(r)
		bookings.NewBookingsHandler(s.Bookings).Mount(r)
		ratings.NewRatingsHandler(s.Ratings).Mount(r)
		exchanges.NewExchangesHandler(s.Exchanges, s.Clock).Mount(r)
		notifications.NewNotificationsHandler(s.Notifications).Mount(r)

		if s.Connections != nil {
			r.Method(http.MethodGet, "/ws", wshandlers.NewHandler(s.Connections, nil))
		}
	})

	return r
}
