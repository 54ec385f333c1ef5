package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin filtering is left to the deployment front
	},
}

// Client is one live connection with its declared identity and current room
// memberships. rooms is guarded by the hub mutex.
type Client struct {
	ID      uuid.UUID
	UserID  int64
	IsAdmin bool

	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
	hub   *Hub
}

// ServeWS upgrades the request and registers the connection. Membership lives
// only as long as the connection; a reconnecting client must pull its unread
// snapshot again.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID int64, isAdmin bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:      uuid.New(),
		UserID:  userID,
		IsAdmin: isAdmin,
		conn:    conn,
		send:    make(chan []byte, 256),
		rooms:   make(map[string]bool),
		hub:     hub,
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// inbound is the client->server wire frame.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.Int64("user_id", c.UserID), zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.Warn("unparseable client message", zap.Int64("user_id", c.UserID), zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		// Flush any queued pushes into the same frame.
		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write(<-c.send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg inbound) {
	ctx := context.Background()

	switch msg.Event {
	case "get_unread_counts":
		// Reply to the requester only, not the whole user room.
		snap, err := c.hub.coordinator.Snapshot(ctx, c.UserID)
		if err != nil {
			c.hub.logger.Error("failed to compute unread snapshot", zap.Int64("user_id", c.UserID), zap.Error(err))
			return
		}
		c.reply(domain.EventUnreadCounts, snap)

	case "chatRead":
		var payload struct {
			UserID int64  `json:"user_id"`
			ChatID string `json:"chat_id"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.hub.logger.Warn("invalid chatRead payload", zap.Error(err))
			return
		}
		// MarkChatRead broadcasts the recomputed snapshot to the user room.
		if _, err := c.hub.coordinator.MarkChatRead(ctx, payload.UserID, payload.ChatID); err != nil {
			c.hub.logger.Error("failed to mark chat read",
				zap.Int64("user_id", payload.UserID),
				zap.String("chat_id", payload.ChatID),
				zap.Error(err),
			)
		}

	case "joinChat":
		var payload struct {
			ChatID string `json:"chat_id"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ChatID == "" {
			c.hub.logger.Warn("invalid joinChat payload", zap.Error(err))
			return
		}
		c.hub.JoinChat(c, payload.ChatID)

	default:
		c.hub.logger.Debug("unhandled client event", zap.String("event", msg.Event))
	}
}

func (c *Client) reply(event string, payload any) {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		c.hub.logger.Error("failed to marshal reply", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
