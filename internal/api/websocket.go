package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stakeport/stakeport/internal/logging"
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	hub        *WebSocketHub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

// WebSocketHub manages WebSocket clients and broadcasting
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan *WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan *WebSocketMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
	}
}

// Run starts the WebSocket hub. It returns when ctx is done, closing every
// client.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected",
				"total_clients", total,
				logging.Component("websocket"))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected",
				"total_clients", total,
				logging.Component("websocket"))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *WebSocketHub) deliver(msg *WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.isSubscribed(msg.Channel) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop it rather than stall the hub.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// BroadcastToChannel sends a message to clients subscribed to a specific channel
func (h *WebSocketHub) BroadcastToChannel(channel string, eventType string, data any) {
	msg := &WebSocketMessage{
		Type:    eventType,
		Channel: channel,
		Data:    data,
	}

	select {
	case h.broadcast <- msg:
	default:
		logging.Warn("WebSocket broadcast buffer full",
			"channel", channel,
			logging.Component("websocket"))
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// newWebSocketClient creates a new WebSocket client subscribed to channels.
func newWebSocketClient(hub *WebSocketHub, conn *websocket.Conn, channels ...string) *WebSocketClient {
	c := &WebSocketClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		subscribed: make(map[string]bool),
	}
	for _, ch := range channels {
		c.subscribed[ch] = true
	}
	return c
}

func (c *WebSocketClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[channel]
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("WebSocket read error",
					"error", err.Error(),
					logging.Component("websocket"))
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming WebSocket messages
func (c *WebSocketClient) handleMessage(msg *WebSocketMessage) {
	switch msg.Type {
	case "subscribe", "unsubscribe":
		var req struct {
			Channels []string `json:"channels"`
		}
		raw, err := json.Marshal(msg.Data)
		if err != nil || json.Unmarshal(raw, &req) != nil {
			return
		}
		c.mu.Lock()
		for _, ch := range req.Channels {
			if msg.Type == "subscribe" {
				c.subscribed[ch] = true
			} else {
				delete(c.subscribed, ch)
			}
		}
		c.mu.Unlock()
		c.sendMessage(&WebSocketMessage{
			Type: msg.Type + "d",
			Data: map[string]any{"channels": c.subscribedChannels()},
		})
	case "ping":
		c.sendMessage(&WebSocketMessage{Type: "pong"})
	}
}

// sendMessage queues a message for this client only. The hub goroutine owns
// closing send, so this must hold the hub lock.
func (c *WebSocketClient) sendMessage(msg *WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// queue writes to send before the client is registered with the hub.
func (c *WebSocketClient) queue(msg *WebSocketMessage) {
	if data, err := json.Marshal(msg); err == nil {
		c.send <- data
	}
}

func (c *WebSocketClient) subscribedChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.subscribed))
	for ch := range c.subscribed {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || s.originAllowed(origin)
		},
	}
}

// handleWebSocket handles GET /v1/ws. New clients are subscribed to the
// session and balance channels and receive the current state first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			"error", err.Error(),
			logging.Component("websocket"))
		return
	}

	client := newWebSocketClient(s.wsHub, conn, ChannelSession, ChannelBalances)
	// Queue current state before registering so it precedes any broadcast.
	if s.sessions != nil {
		client.queue(&WebSocketMessage{Type: "current", Channel: ChannelSession, Data: sessionResponse(s.sessions.Session())})
	}
	if s.balances != nil {
		if snap := s.balances.Snapshot(); snap != nil {
			client.queue(&WebSocketMessage{Type: "snapshot", Channel: ChannelBalances, Data: balancesResponse(snap)})
		}
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
