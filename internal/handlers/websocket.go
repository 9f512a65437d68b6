package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"wallpaper-notify/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // mobile clients send no Origin
	},
}

// WebSocketHandler handles in-app WebSocket connections
type WebSocketHandler struct {
	hub         *services.WSHub
	authService *services.AuthService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, authService *services.AuthService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.authService.ValidateJWT(token)
	if err != nil || claims.Subject == "" {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.Subject

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.reply(userID, services.WSMessage{Type: "error", Message: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.reply(userID, services.WSMessage{Type: "pong"})
		default:
			h.reply(userID, services.WSMessage{Type: "error", Message: "Unknown message type"})
		}
	}
}

func (h *WebSocketHandler) reply(userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to reply on WebSocket")
	}
}
