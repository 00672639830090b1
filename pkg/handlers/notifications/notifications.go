package notifications

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/apperr"
	"github.com/chris/neighborhood-packs/pkg/handlers"
	"github.com/chris/neighborhood-packs/pkg/mapping"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/go-chi/chi/v5"
)

const defaultLimit = 50

var ErrNotificationNotFound = apperr.NotFound("notification not found")

// NotificationsHandler serves the caller's stored notifications.
type NotificationsHandler struct {
	Store storage.NotificationReader
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(store storage.NotificationReader) *NotificationsHandler {
	return &NotificationsHandler{Store: store}
}

// Mount registers the notification routes.
func (h *NotificationsHandler) Mount(r chi.Router) {
	r.Get("/notifications", h.ListNotifications)
	r.Post("/notifications/{notificationId}/read", h.MarkRead)
}

func (h *NotificationsHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := int32(defaultLimit)
	if !handlers.QueryParam(w, r, "limit", &limit) {
		return
	}
	if limit <= 0 || limit > 200 {
		handlers.BadRequest(w, "limit must be between 1 and 200")
		return
	}

	list, err := h.Store.ListNotifications(r.Context(), middleware.UserID(r.Context()), limit)
	if err != nil {
		handlers.WriteError(w, r, fmt.Errorf("failed to list notifications: %w", err))
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiNotifications(list))
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	notificationID, ok := handlers.PathID(w, r, "notificationId")
	if !ok {
		return
	}
	if err := h.Store.MarkNotificationRead(r.Context(), middleware.UserID(r.Context()), notificationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrNotificationNotFound
		}
		handlers.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
