package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
)

// StoreSink persists notifications so users can list them later.
// Redelivered notifications (same ID) are accepted silently.
type StoreSink struct {
	Store storage.NotificationWriter
}

var _ Sink = (*StoreSink)(nil)

func (s *StoreSink) Send(ctx context.Context, n models.Notification) error {
	if err := s.Store.SaveNotification(ctx, &n); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}
