package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/google/uuid"
)

// Notifier delivers notifications on a best-effort basis. It never blocks on
// delivery and never reports failure to the caller; a transaction that already
// committed must not be undone by a failed notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Sink delivers a single notification to one destination.
type Sink interface {
	Send(ctx context.Context, n models.Notification) error
}

// New builds a notification with a fresh ID.
func New(at time.Time, userID string, typ models.NotificationType, title, message, link string, metadata map[string]string) models.Notification {
	return models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Link:      link,
		Metadata:  metadata,
		CreatedAt: at,
	}
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, models.Notification) {}

// Direct delivers inline through Sink and logs failures. Used by the lambdas,
// which have no long-lived dispatcher.
type Direct struct {
	Sink Sink
}

func (d Direct) Notify(ctx context.Context, n models.Notification) {
	if err := d.Sink.Send(ctx, n); err != nil {
		slog.Error("failed to deliver notification",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.UserID),
			slog.String("type", string(n.Type)),
			slog.Any("error", err))
	}
}

// Multi sends to every sink and joins their errors. One failing sink does not
// stop the others.
type Multi []Sink

func (m Multi) Send(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n models.Notification) error

func (f SinkFunc) Send(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}
