package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSHub_NotifyWallpaper(t *testing.T) {
	hub := NewWSHub(0)
	registered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(bobID, conn)
		close(registered)
		defer hub.Unregister(bobID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not registered")
	}

	assert.True(t, hub.IsOnline(bobID))
	assert.False(t, hub.IsOnline(aliceID))
	assert.Error(t, hub.NotifyWallpaper(aliceID, map[string]string{"type": "wallpaper_sync"}))

	require.NoError(t, hub.NotifyWallpaper(bobID, map[string]string{"wallpaper_id": testWallpaperID}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, "wallpaper_sync", msg.Type)
	assert.Equal(t, testWallpaperID, msg.Data["wallpaper_id"])

	hub.Close()
	assert.False(t, hub.IsOnline(bobID))
}

func TestWSHub_DropsClientThatStopsReading(t *testing.T) {
	hub := NewWSHub(200 * time.Millisecond)
	defer hub.Close()
	registered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(bobID, conn)
		close(registered)
		defer hub.Unregister(bobID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	// The client never reads, so the socket buffers eventually fill up
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not registered")
	}

	data := map[string]string{"image_url": strings.Repeat("x", 64<<10)}
	done := make(chan error, 1)
	go func() {
		for {
			if err := hub.NotifyWallpaper(bobID, data); err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("NotifyWallpaper did not give up on a client that stopped reading")
	}
	assert.False(t, hub.IsOnline(bobID))
}
