package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/models"
)

func newServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := hub.Register(r.URL.Query().Get("user"), models.Role(r.URL.Query().Get("role")), conn)
		defer func() {
			hub.Unregister(c)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string, role models.Role) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user + "&role=" + string(role)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (message, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return message{}, false
	}
	var m message
	require.NoError(t, json.Unmarshal(data, &m))
	return m, true
}

func TestPublishReachesRecipientsAndAdmins(t *testing.T) {
	hub := NewHub(logger.Discard())
	srv := newServer(t, hub)

	receiver := dial(t, srv, "R1", models.RoleReceiver)
	stranger := dial(t, srv, "R2", models.RoleReceiver)
	admin := dial(t, srv, "A1", models.RoleAdmin)
	require.Eventually(t, func() bool { return hub.Connected() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.Event{
		Type:       events.CheckpointRecorded,
		ShipmentID: "SHP-1",
		At:         time.Now(),
		Payload:    map[string]string{"location_code": "JAI"},
		Recipients: []string{"M1", "R1"},
	}))

	m, ok := read(t, receiver)
	require.True(t, ok)
	assert.Equal(t, events.CheckpointRecorded, m.Type)
	assert.Equal(t, "SHP-1", m.ShipmentID)

	_, ok = read(t, admin)
	assert.True(t, ok)

	_, ok = read(t, stranger)
	assert.False(t, ok)
}

func TestAdminOnlyEvent(t *testing.T) {
	hub := NewHub(logger.Discard())
	srv := newServer(t, hub)

	receiver := dial(t, srv, "R1", models.RoleReceiver)
	admin := dial(t, srv, "A1", models.RoleAdmin)
	require.Eventually(t, func() bool { return hub.Connected() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.Event{Type: events.DocumentsTampered, ShipmentID: "SHP-1"}))

	m, ok := read(t, admin)
	require.True(t, ok)
	assert.Equal(t, events.DocumentsTampered, m.Type)
	_, ok = read(t, receiver)
	assert.False(t, ok)
}

func TestUnregisterOnClose(t *testing.T) {
	hub := NewHub(logger.Discard())
	srv := newServer(t, hub)

	conn := dial(t, srv, "R1", models.RoleReceiver)
	require.Eventually(t, func() bool { return hub.Connected() == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.Connected() == 0 }, time.Second, 5*time.Millisecond)

	assert.NoError(t, hub.Publish(context.Background(), events.Event{Type: events.AnomalyDetected, Recipients: []string{"R1"}}))
}
