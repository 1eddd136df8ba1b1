package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSnapshot    = "snapshot"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256

	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// WSMessage is the envelope for every message in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex

	// snapshot answers "snapshot" requests. Nil disables them.
	snapshot func() []machineResponse
}

// CORS middleware has already vetted the origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection. When a JWT secret is configured
// the caller must present a ticket from POST /auth/ws-ticket, since browsers
// cannot set headers on the upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.secCfg.JWT.Secret != "" {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		if !s.tickets.consume(ticket) {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		snapshot:      s.machineSnapshots,
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (s *Server) machineSnapshots() []machineResponse {
	machines := s.registry.Machines()
	out := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		out = append(out, toMachineResponse(m.Snapshot()))
	}
	return out
}

// keepalive returns the ping interval and pong timeout, applying defaults
// for unset values.
func (h *Hub) keepalive() (ping, pong time.Duration) {
	ping = time.Duration(h.cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(h.cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	limit := int64(c.hub.cfg.MaxMessageSize)
	if limit <= 0 {
		limit = defaultMaxMessageSize
	}
	c.conn.SetReadLimit(limit)

	ping, pong := c.hub.keepalive()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application messages count as liveness too.
		extend() //nolint:errcheck // A failed deadline surfaces as a read error
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	ping, pong := c.hub.keepalive()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Best-effort close frame
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // Write error caught below
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // Ping error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &sub) != nil {
			c.sendError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
		c.updateSubscriptions(msg.Type == WSTypeSubscribe, sub.Channels)
		key := "subscribed"
		if msg.Type == WSTypeUnsubscribe {
			key = "unsubscribed"
		}
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
	case WSTypeSnapshot:
		if c.snapshot == nil {
			c.sendError(msg.ID, "snapshots are not available")
			return
		}
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"machines": c.snapshot()})
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) updateSubscriptions(add bool, channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()
	c.hub.logger.Debug("websocket subscriptions updated", "add", add, "channels", channels)
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[ChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client already disconnected.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}

