package packs

import (
	"context"
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/booking"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/handlers"
	"github.com/chris/neighborhood-packs/pkg/mapping"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/packs"
	"github.com/go-chi/chi/v5"
)

// defaultFeedLimit caps GET /packs when no limit is given.
const defaultFeedLimit = 50

// Registry is the subset of packs.Registry used by the handlers.
type Registry interface {
	CreatePack(ctx context.Context, in packs.CreatePackInput) (*models.Pack, error)
	GetPack(ctx context.Context, packID string) (*models.Pack, error)
	ListOwnerPacks(ctx context.Context, ownerID string) ([]models.Pack, error)
	ListAvailable(ctx context.Context, limit int32) ([]models.Pack, error)
	SetStatus(ctx context.Context, packID, ownerID string, status models.PackStatus) (*models.Pack, error)
	DeletePack(ctx context.Context, packID, ownerID string) error
}

// PacksHandler holds the dependencies for pack-related handlers.
type PacksHandler struct {
	Registry Registry
	Bookings booking.Service
	Clock    clock.Clock
}

// NewPacksHandler creates a new PacksHandler.
func NewPacksHandler(registry Registry, bookings booking.Service, c clock.Clock) *PacksHandler {
	return &PacksHandler{Registry: registry, Bookings: bookings, Clock: c}
}

// Mount registers the pack routes.
func (h *PacksHandler) Mount(r chi.Router) {
	r.Post("/packs", h.CreatePack)
	r.Get("/packs", h.ListAvailablePacks)
	r.Get("/packs/mine", h.ListMyPacks)
	r.Get("/packs/{packId}", h.GetPackById)
	r.Patch("/packs/{packId}/status", h.SetPackStatus)
	r.Delete("/packs/{packId}", h.DeletePack)
	r.Get("/packs/{packId}/booking-status", h.GetBookingStatus)
}

func (h *PacksHandler) CreatePack(w http.ResponseWriter, r *http.Request) {
	var newPack api.NewPack
	if !handlers.DecodeJSON(w, r, &newPack) {
		return
	}

	pack, err := h.Registry.CreatePack(r.Context(), mapping.ToDomainNewPack(&newPack, middleware.UserID(r.Context())))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, mapping.ToApiPack(pack, h.Clock.Now()))
}

// ListAvailablePacks is the public feed of available packs, newest first.
func (h *PacksHandler) ListAvailablePacks(w http.ResponseWriter, r *http.Request) {
	limit := int32(defaultFeedLimit)
	if !handlers.QueryParam(w, r, "limit", &limit) {
		return
	}
	if limit <= 0 || limit > 200 {
		handlers.BadRequest(w, "limit must be between 1 and 200")
		return
	}

	list, err := h.Registry.ListAvailable(r.Context(), limit)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiPacks(list, h.Clock.Now()))
}

func (h *PacksHandler) ListMyPacks(w http.ResponseWriter, r *http.Request) {
	list, err := h.Registry.ListOwnerPacks(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiPacks(list, h.Clock.Now()))
}

func (h *PacksHandler) GetPackById(w http.ResponseWriter, r *http.Request) {
	packID, ok := handlers.PathID(w, r, "packId")
	if !ok {
		return
	}
	pack, err := h.Registry.GetPack(r.Context(), packID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiPack(pack, h.Clock.Now()))
}

func (h *PacksHandler) SetPackStatus(w http.ResponseWriter, r *http.Request) {
	packID, ok := handlers.PathID(w, r, "packId")
	if !ok {
		return
	}
	var update api.PackStatusUpdate
	if !handlers.DecodeJSON(w, r, &update) {
		return
	}

	pack, err := h.Registry.SetStatus(r.Context(), packID, middleware.UserID(r.Context()), models.PackStatus(update.Status))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiPack(pack, h.Clock.Now()))
}

func (h *PacksHandler) DeletePack(w http.ResponseWriter, r *http.Request) {
	packID, ok := handlers.PathID(w, r, "packId")
	if !ok {
		return
	}
	if err := h.Registry.DeletePack(r.Context(), packID, middleware.UserID(r.Context())); err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBookingStatus reports whether the caller holds an active booking on the
// pack and whether anyone does.
func (h *PacksHandler) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	packID, ok := handlers.PathID(w, r, "packId")
	if !ok {
		return
	}
	ctx := r.Context()
	handlers.WriteJSON(w, http.StatusOK, api.PackBookingStatus{
		HasActiveBooking: h.Bookings.HasActiveBooking(ctx, packID, middleware.UserID(ctx)),
		IsBooked:         h.Bookings.IsPackBooked(ctx, packID),
	})
}
