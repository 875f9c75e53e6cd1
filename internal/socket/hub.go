// Package socket pushes shipment events to connected dashboard clients.
package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/models"
)

const writeWait = 5 * time.Second

// Client is one websocket connection. A user may hold several.
type Client struct {
	UserID string
	Role   models.Role
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *Client) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// message is the frame sent to clients.
type message struct {
	Type       events.Type `json:"type"`
	ShipmentID string      `json:"shipment_id"`
	At         time.Time   `json:"at"`
	Payload    any         `json:"payload"`
}

// Hub tracks live connections by user id. Admin connections receive every
// event; everyone else only events that name them as a recipient.
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     log.WithField("module", "socket"),
	}
}

func (h *Hub) Register(userID string, role models.Role, conn *websocket.Conn) *Client {
	c := &Client{UserID: userID, Role: role, conn: conn}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.log.WithFields(logrus.Fields{"user_id": userID, "role": role}).Debug("websocket client registered")
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	h.log.WithField("user_id", c.UserID).Debug("websocket client unregistered")
}

// Connected reports how many connections are open.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) targets(recipients []string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Client]struct{})
	var out []*Client
	add := func(c *Client) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	for _, id := range recipients {
		for c := range h.clients[id] {
			add(c)
		}
	}
	for _, set := range h.clients {
		for c := range set {
			if c.Role == models.RoleAdmin {
				add(c)
			}
		}
	}
	return out
}

// Publish implements events.Publisher. A client whose write fails is dropped;
// its read loop sees the closed connection and exits.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	clients := h.targets(ev.Recipients)
	if len(clients) == 0 {
		return nil
	}
	frame, err := json.Marshal(message{Type: ev.Type, ShipmentID: ev.ShipmentID, At: ev.At, Payload: ev.Payload})
	if err != nil {
		return err
	}
	for _, c := range clients {
		if err := c.write(frame); err != nil {
			h.log.WithField("user_id", c.UserID).WithError(err).Warn("websocket write failed")
			h.Unregister(c)
			c.conn.Close()
		}
	}
	return nil
}
