package handlers

import (
	"log/slog"
	"net/http"

	ws "github.com/gorilla/websocket"

	"github.com/tastelab/cupping-rooms/internal/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type RealtimeHandler struct {
	base
	hub *websocket.Hub
}

func NewRealtimeHandler(hub *websocket.Hub, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{base: newBase(logger), hub: hub}
}

// Connect upgrades an authenticated request to a realtime connection.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime_upgrade_failed", "profile_id", profile.ID, "error", err)
		return
	}
	client := h.hub.Serve(conn, websocket.Identity{ProfileID: profile.ID, ClerkID: profile.ClerkID})
	h.logger.Debug("realtime_connected", "profile_id", profile.ID, "client_id", client.ID())
}
