package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans events out to the clients subscribed to each debate session. All
// publishes flow through a single Run goroutine, so every subscriber of a
// session observes events in publish order.
type Hub struct {
	sessions map[string]map[*Client]bool
	publish  chan outbound
	mu       sync.RWMutex
}

type outbound struct {
	sessionID string
	payload   []byte
}

type Client struct {
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan []byte
	UserID       string
	SessionID    string
	EventHandler func(*Client, []byte) // routes inbound client events

	closed bool // guarded by Hub.mu
}

// Event is the envelope for everything that crosses the websocket, in both
// directions.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*Client]bool),
		publish:  make(chan outbound, 64),
	}
}

func (h *Hub) Run() {
	for message := range h.publish {
		h.mu.Lock()
		for client := range h.sessions[message.sessionID] {
			select {
			case client.Send <- message.payload:
			default:
				// Slow consumer: drop the connection, not the event loop.
				h.closeSendLocked(client)
				delete(h.sessions[message.sessionID], client)
			}
		}
		if len(h.sessions[message.sessionID]) == 0 {
			delete(h.sessions, message.sessionID)
		}
		h.mu.Unlock()
	}
}

// NewClient wraps a freshly upgraded connection. The client is not attached
// to any session until Subscribe is called.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
}

// Subscribe attaches the client to a session's event stream.
func (h *Hub) Subscribe(client *Client, sessionID string) {
	client.SessionID = sessionID

	h.mu.Lock()
	subscribers, ok := h.sessions[sessionID]
	if !ok {
		subscribers = make(map[*Client]bool)
		h.sessions[sessionID] = subscribers
	}
	subscribers[client] = true
	h.mu.Unlock()

	slog.Info("Client subscribed", "user_id", client.UserID, "session_id", sessionID)
}

// Unsubscribe detaches the client from its session. The connection and its
// send channel stay open so the client can still receive direct replies and
// join another session.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	h.detachLocked(client)
	h.mu.Unlock()

	slog.Info("Client unsubscribed", "user_id", client.UserID, "session_id", client.SessionID)
}

// Disconnect detaches the client and closes its send channel, stopping the
// write pump. Called when the connection's read pump exits.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	h.detachLocked(client)
	h.closeSendLocked(client)
	h.mu.Unlock()
}

// detachLocked removes the client from its session's subscriber set. Caller
// holds h.mu.
func (h *Hub) detachLocked(client *Client) {
	if subscribers, ok := h.sessions[client.SessionID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.sessions, client.SessionID)
		}
	}
}

// closeSendLocked closes the client's send channel exactly once. Caller holds
// h.mu, which serializes the close against every send on the channel.
func (h *Hub) closeSendLocked(client *Client) {
	if !client.closed {
		client.closed = true
		close(client.Send)
	}
}

// Publish delivers an event to every subscriber of the session. Delivery is
// fire-and-forget: a failed or slow connection never blocks the publisher.
func (h *Hub) Publish(sessionID, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, SessionID: sessionID, Payload: payload})
	if err != nil {
		slog.Error("Failed to marshal event", "error", err, "type", eventType)
		return
	}
	h.publish <- outbound{sessionID: sessionID, payload: data}
}

// SendTo delivers an event to a single connection, for connection-scoped
// replies such as validation errors. Safe to call for a disconnected client.
func (h *Hub) SendTo(client *Client, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, SessionID: client.SessionID, Payload: payload})
	if err != nil {
		slog.Error("Failed to marshal event", "error", err, "type", eventType)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return
	}
	select {
	case client.Send <- data:
	default:
		slog.Warn("Dropped direct event for slow client", "user_id", client.UserID, "type", eventType)
	}
}

// SubscriberCount reports how many connections are attached to a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err, "user_id", c.UserID)
			}
			break
		}

		if c.EventHandler != nil {
			c.EventHandler(c, messageBytes)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
