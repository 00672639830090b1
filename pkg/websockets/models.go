package websockets

import "github.com/chris/neighborhood-packs/pkg/models"

// MessageType defines the type of a WebSocket message.
type MessageType string

const (
	// MessageTypeConnected is sent once after the upgrade.
	MessageTypeConnected MessageType = "connected"
	// MessageTypeNotification carries a user notification.
	MessageTypeNotification MessageType = "notification"
)

// Message represents a generic WebSocket message.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// ConnectedPayload is the payload for a connected message.
type ConnectedPayload struct {
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
}

// NotificationMessage wraps n for delivery.
func NotificationMessage(n models.Notification) Message {
	return Message{Type: MessageTypeNotification, Payload: n}
}
