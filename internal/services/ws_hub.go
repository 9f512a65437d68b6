package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// defaultWriteWait bounds a single write when the hub is built without one
const defaultWriteWait = 10 * time.Second

// wsClient serializes writes to one connection
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte, writeWait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages the in-app WebSocket connections of users
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
	writeWait   time.Duration
}

// NewWSHub creates a new WebSocket hub.
// writeWait bounds every write; a client that stops reading is dropped once it
// expires. Zero or less selects defaultWriteWait.
func NewWSHub(writeWait time.Duration) *WSHub {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &WSHub{
		connections: make(map[string]*wsClient),
		writeWait:   writeWait,
	}
}

// Register registers a connection for a user, replacing any previous one
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.connections[userID]; ok {
		existing.conn.Close()
	}
	h.connections[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the user's connection if it is still conn
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.connections[userID]; ok && client.conn == conn {
		client.conn.Close()
		delete(h.connections, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.connections[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data, h.writeWait); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[userID]
	return ok
}

// NotifyWallpaper sends the wallpaper_sync event to a connected user
func (h *WSHub) NotifyWallpaper(userID string, data map[string]string) error {
	return h.SendToUser(userID, WSMessage{
		Type: wallpaperSyncType,
		Data: data,
	})
}

// Close closes every registered connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, client := range h.connections {
		client.conn.Close()
		delete(h.connections, userID)
	}
}
