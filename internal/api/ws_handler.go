package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/realtime"
	"github.com/tradeloop/notification-service/pkg/response"
)

// WSHandler upgrades connections into the realtime hub. Identity is declared
// through query parameters: user_id is required, is_admin optionally joins
// the shared admin room.
type WSHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid user_id")
		return
	}
	isAdmin, _ := strconv.ParseBool(r.URL.Query().Get("is_admin"))

	realtime.ServeWS(h.hub, w, r, userID, isAdmin)
}
