package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/domain"
)

// Room names. A connection always joins its user room, optionally the shared
// admin room, and any number of chat rooms on demand.
const AdminRoom = "admin_room"

func UserRoom(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

func ChatRoom(chatID string) string {
	return "chat_" + chatID
}

// Coordinator is the slice of the notification service that connected
// clients can drive directly over the socket.
type Coordinator interface {
	Snapshot(ctx context.Context, userID int64) (*domain.UnreadSnapshot, error)
	MarkChatRead(ctx context.Context, userID int64, chatID string) (int64, error)
}

// Envelope is the wire frame for every server->client message.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks live connections and their room memberships. Broadcasts are
// fire-and-forget: a room with no members drops the message, and a client
// whose send buffer is full skips it. The store stays the source of truth.
type Hub struct {
	clients     map[*Client]bool
	rooms       map[string]map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	mu          sync.RWMutex
	coordinator Coordinator
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetCoordinator wires the notification service in after construction; the
// service itself broadcasts through the hub, so the two are built in stages.
func (h *Hub) SetCoordinator(c Coordinator) {
	h.coordinator = c
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.joinLocked(client, UserRoom(client.UserID))
	if client.IsAdmin {
		h.joinLocked(client, AdminRoom)
	}
	h.mu.Unlock()

	h.logger.Debug("client connected",
		zap.String("conn_id", client.ID.String()),
		zap.Int64("user_id", client.UserID),
		zap.Bool("is_admin", client.IsAdmin),
	)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for room := range client.rooms {
			h.leaveLocked(client, room)
		}
		close(client.send)
	}
	h.mu.Unlock()

	h.logger.Debug("client disconnected",
		zap.String("conn_id", client.ID.String()),
		zap.Int64("user_id", client.UserID),
	)
}

func (h *Hub) joinLocked(client *Client, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.rooms[room] = true
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// JoinChat subscribes a live connection to a conversation room, so observers
// that are not the named recipient still see chat pushes.
func (h *Hub) JoinChat(client *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		h.joinLocked(client, ChatRoom(chatID))
	}
}

// Broadcaster implementation used by the notification service.

func (h *Hub) ToUser(userID int64, event string, payload any) {
	h.toRoom(UserRoom(userID), event, payload)
}

func (h *Hub) ToChat(chatID string, event string, payload any) {
	h.toRoom(ChatRoom(chatID), event, payload)
}

func (h *Hub) ToAdmins(event string, payload any) {
	h.toRoom(AdminRoom, event, payload)
}

func (h *Hub) toRoom(room, event string, payload any) {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to marshal push", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		select {
		case client.send <- msg:
		default:
			// Slow client: skip this push rather than block the pipeline.
			h.logger.Warn("dropping push for slow client",
				zap.String("room", room),
				zap.String("event", event),
				zap.Int64("user_id", client.UserID),
			)
		}
	}
}

// RoomSize reports current membership, used by tests and debugging.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
