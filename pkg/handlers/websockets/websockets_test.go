package websockets

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/websockets"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHTTP(t *testing.T) {
	hub := websockets.NewHub()
	defer hub.Close()
	srv := httptest.NewServer(middleware.Identity(NewHandler(hub, nil)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("rejects anonymous upgrades", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("greets and pushes", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(url+"?user_id=alice", nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var greeting struct {
			Type    websockets.MessageType      `json:"type"`
			Payload websockets.ConnectedPayload `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&greeting))
		assert.Equal(t, websockets.MessageTypeConnected, greeting.Type)
		assert.Equal(t, "alice", greeting.Payload.UserID)
		assert.Equal(t, 1, hub.Count("alice"))

		require.NoError(t, hub.Send(context.Background(), models.Notification{ID: "n1", UserID: "alice", Type: models.NotifyExchangeProposed}))

		var pushed struct {
			Type    websockets.MessageType `json:"type"`
			Payload models.Notification    `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&pushed))
		assert.Equal(t, websockets.MessageTypeNotification, pushed.Type)
		assert.Equal(t, "n1", pushed.Payload.ID)
	})
}
