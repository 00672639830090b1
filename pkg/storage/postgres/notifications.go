package postgres

import (
	"context"
	"fmt"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
)

func (s *Store) SaveNotification(ctx context.Context, n *models.Notification) error {
	const stmt = `
INSERT INTO notifications (` + notificationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.exec(ctx, stmt, n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.Link, n.Metadata, n.Read, n.CreatedAt)
	if err != nil {
		if uniqueViolation(err) != "" {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int32) ([]models.Notification, error) {
	rows, err := s.query(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT NULLIF($2::INT, 0)`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	notifications, err := collect(rows, scanNotification)
	if err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return notifications, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	tag, err := s.exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
