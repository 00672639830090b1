package websockets

import (
	"context"

	"github.com/gorilla/websocket"
)

// ConnectionManager tracks the live connections of each user.
type ConnectionManager interface {
	AddConnection(userID string, conn *websocket.Conn) *Client
	RemoveConnection(client *Client)
}

// Publisher delivers a message to every connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, message Message) error
}
