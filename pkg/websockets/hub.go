package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/notify"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

// Client is one websocket connection of a user.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

// Hub keeps the connections of this process by user and pushes notifications
// to them. It is a notify.Sink; other processes reach it through Redis.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

var (
	_ ConnectionManager = (*Hub)(nil)
	_ Publisher         = (*Hub)(nil)
	_ notify.Sink       = (*Hub)(nil)
)

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// AddConnection registers conn for userID and starts its write pump.
func (h *Hub) AddConnection(userID string, conn *websocket.Conn) *Client {
	c := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	slog.Debug("websocket client connected", slog.String("user_id", userID), slog.String("connection_id", c.ID))
	return c
}

// RemoveConnection unregisters the client and closes its connection. It is
// safe to call more than once.
func (h *Hub) RemoveConnection(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	c.once.Do(func() { close(c.send) })
	slog.Debug("websocket client disconnected", slog.String("user_id", c.UserID), slog.String("connection_id", c.ID))
}

// Publish queues message for every connection of userID. A client whose
// buffer is full is dropped rather than allowed to stall the others.
func (h *Hub) Publish(ctx context.Context, userID string, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(payload) {
			slog.Info("dropping slow websocket client", slog.String("connection_id", c.ID))
			h.RemoveConnection(c)
		}
	}
	return nil
}

// Send implements notify.Sink.
func (h *Hub) Send(ctx context.Context, n models.Notification) error {
	return h.Publish(ctx, n.UserID, NotificationMessage(n))
}

// Count returns the number of live connections of userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.RemoveConnection(c)
	}
}

// enqueue reports false when the buffer is full or the client is closed.
func (c *Client) enqueue(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Deliver queues a message for this connection only.
func (c *Client) Deliver(message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if !c.enqueue(payload) {
		return fmt.Errorf("websocket client %s is not accepting messages", c.ID)
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump blocks until the peer goes away. Clients are not expected to send
// anything; reading is what notices the disconnect and answers pings.
func (c *Client) ReadPump() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("unexpected websocket close", slog.String("connection_id", c.ID), slog.Any("error", err))
			}
			return
		}
	}
}
