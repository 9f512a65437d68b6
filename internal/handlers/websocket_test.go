package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wallpaper-notify/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWebSocket_RejectsMissingToken(t *testing.T) {
	h := NewWebSocketHandler(services.NewWSHub(0), services.NewAuthService("secret"))

	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleWebSocket_PingAndWallpaperEvent(t *testing.T) {
	hub := services.NewWSHub(0)
	t.Cleanup(hub.Close)
	auth := services.NewAuthService("secret")

	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, auth).HandleWebSocket))
	t.Cleanup(srv.Close)

	token, err := auth.GenerateJWT(adaID, "authenticated", time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "ping"}))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)

	assert.True(t, hub.IsOnline(adaID))
	require.NoError(t, hub.NotifyWallpaper(adaID, map[string]string{"wallpaper_id": wallpaperID}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "wallpaper_sync", msg.Type)
}
