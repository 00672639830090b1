package storage

import (
	"context"

	"github.com/chris/neighborhood-packs/pkg/models"
)

// NotificationReader defines the user-facing notification operations.
type NotificationReader interface {
	// ListNotifications retrieves up to limit notifications for a user, newest first.
	ListNotifications(ctx context.Context, userID string, limit int32) ([]models.Notification, error)

	// MarkNotificationRead flags a user's notification as read.
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
}

// NotificationWriter persists notifications delivered by the fan-out.
type NotificationWriter interface {
	// SaveNotification stores a notification, returning ErrAlreadyExists for a duplicate ID.
	SaveNotification(ctx context.Context, n *models.Notification) error
}

// NotificationStore combines the reader and writer interfaces.
type NotificationStore interface {
	NotificationReader
	NotificationWriter
}
