package websockets

import (
	"log/slog"
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/websockets"
	"github.com/gorilla/websocket"
)

// Handler upgrades /ws requests and registers the caller's connection.
type Handler struct {
	connManager websockets.ConnectionManager
	upgrader    websocket.Upgrader
}

// NewHandler creates a new Handler. checkOrigin may be nil to allow any origin.
func NewHandler(connManager websockets.ConnectionManager, checkOrigin func(r *http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		connManager: connManager,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: checkOrigin},
	}
}

// ServeHTTP holds the connection open until the client goes away. The server
// only pushes; incoming messages are discarded.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", slog.Any("error", err))
		return
	}

	client := h.connManager.AddConnection(userID, conn)
	defer h.connManager.RemoveConnection(client)

	if err := client.Deliver(websockets.Message{
		Type:    websockets.MessageTypeConnected,
		Payload: websockets.ConnectedPayload{UserID: userID, ConnectionID: client.ID},
	}); err != nil {
		slog.Warn("failed to greet websocket client", slog.String("connection_id", client.ID), slog.Any("error", err))
	}

	client.ReadPump()
}
