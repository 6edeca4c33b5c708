package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulse/internal/metrics"
	"pulse/pkg/auth"
	"pulse/pkg/logging"
)

var ErrHubStopped = errors.New("notification hub stopped")

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type roomMessage struct {
	room    string
	payload []byte
}

// Hub maintains the set of connected clients and fans room messages out to them.
// A single loop owns delivery, so messages to a room keep publish order.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	logger  logging.Logger
	metrics *metrics.Metrics
	mutex   sync.RWMutex
}

// Client is one websocket connection. Its rooms are fixed at connect time.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]struct{}
	userID string
	logger logging.Logger
}

func NewHub(logger logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan roomMessage, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run delivers messages until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mutex.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
				"rooms":        client.roomList(),
				"user_id":      client.userID,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client]
			if ok {
				h.drop(client)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			if ok {
				h.logger.WithField("client_count", count).Info("Client disconnected")
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mutex.Lock()
		for client := range h.clients {
			h.drop(client)
		}
		h.mutex.Unlock()
	})
}

// drop removes a client; the caller holds the write lock.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.ConnectionClosed()
}

func (h *Hub) deliver(msg roomMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if _, ok := client.rooms[msg.room]; !ok {
			continue
		}
		select {
		case client.send <- msg.payload:
		default:
			h.logger.WithFields(logging.Fields{
				"room":    msg.room,
				"user_id": client.userID,
			}).Warn("Dropping slow websocket client")
			h.drop(client)
		}
	}
}

// Publish delivers an event to the room's members on this process
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) error {
	env, err := NewEnvelope(room, event, payload)
	if err != nil {
		return err
	}
	if err := h.Deliver(ctx, env); err != nil {
		return err
	}
	h.metrics.IncEvent(event, roomKind(room))
	return nil
}

// Deliver enqueues an already built envelope
func (h *Hub) Deliver(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- roomMessage{room: env.Room, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	roomStats := make(map[string]int)
	for client := range h.clients {
		for room := range client.rooms {
			roomStats[room]++
		}
	}

	return map[string]interface{}{
		"total_clients": len(h.clients),
		"room_members":  roomStats,
	}
}

// ServeWS upgrades an authenticated request and joins the principal's rooms
// before the client is registered for delivery.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if p == nil {
		http.Error(w, auth.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
		userID: p.UserID,
		logger: h.logger,
	}
	for _, room := range RoomsFor(p) {
		client.rooms[room] = struct{}{}
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) roomList() []string {
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// readPump only services control frames; membership is decided server-side.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			return
		}
	}
}

// writePump sends one frame per message so clients can decode each envelope
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
