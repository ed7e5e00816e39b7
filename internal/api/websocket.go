package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/config"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/logging"
)

// Message types. Clients send subscribe, unsubscribe and ping; the server
// sends event, ack, pong and error.
const (
	wsTypeSubscribe   = "subscribe"
	wsTypeUnsubscribe = "unsubscribe"
	wsTypePing        = "ping"
	wsTypePong        = "pong"
	wsTypeEvent       = "event"
	wsTypeAck         = "ack"
	wsTypeError       = "error"

	// wsSendBufferSize is the per-client outbound queue length. Events for a
	// client whose queue is full are dropped.
	wsSendBufferSize = 256

	// wsChannelAll subscribes a client to every channel.
	wsChannelAll = "*"
)

// wsMessage is the single frame shape used in both directions.
//
// Events carry Channel (a client.Event* name such as "device.state") and
// Payload. Subscribe and unsubscribe requests carry Channels; their ack
// echoes ID and lists the client's channels afterwards.
type wsMessage struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Payload   any      `json:"payload,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Hub fans device events out to WebSocket clients. It implements
// client.EventPublisher.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The API has no browser session to protect.
		return true
	},
}

// NewHub creates a hub with no clients.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast sends an event to every client subscribed to channel or to "*".
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(wsMessage{
		Type:      wsTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}

	// Client locks are taken only after the hub lock is released.
	h.mu.RLock()
	clients := lo.Keys(h.clients)
	h.mu.RUnlock()

	recipients := 0
	for _, c := range clients {
		if c.wants(channel) {
			c.trySend(data)
			recipients++
		}
	}
	if recipients > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", recipients)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes c. Only the caller that actually removed it closes the
// send channel, so closeAll and readPump cannot double-close.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// handleWebSocket upgrades the connection and subscribes the channels listed
// in the comma-separated "channels" query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
	c.subscribe(splitChannels(r.URL.Query().Get("channels")))

	s.hub.register(c)
	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func splitChannels(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(ch string, _ int) string {
		return strings.TrimSpace(ch)
	}))
}

// readPump handles client requests until the connection fails.
func (c *wsClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	deadline := func() time.Time { return time.Now().Add(cfg.PingInterval + cfg.PongTimeout) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(deadline()) //nolint:errcheck // Read below reports a dead connection
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(deadline()) //nolint:errcheck // Any request counts as keepalive
		c.handle(data)
	}
}

// writePump drains the send queue and pings at PingInterval.
func (c *wsClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(cfg.PongTimeout)) //nolint:errcheck // Write reports failures
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Connection is closing
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req wsMessage
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(wsMessage{Type: wsTypeError, Error: "invalid JSON message"})
		return
	}

	switch req.Type {
	case wsTypeSubscribe:
		c.subscribe(req.Channels)
		c.reply(wsMessage{Type: wsTypeAck, ID: req.ID, Channels: c.subscribed()})
	case wsTypeUnsubscribe:
		c.unsubscribe(req.Channels)
		c.reply(wsMessage{Type: wsTypeAck, ID: req.ID, Channels: c.subscribed()})
	case wsTypePing:
		c.reply(wsMessage{Type: wsTypePong, ID: req.ID})
	default:
		c.reply(wsMessage{Type: wsTypeError, ID: req.ID, Error: "unknown message type: " + req.Type})
	}
}

func (c *wsClient) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
}

func (c *wsClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
}

// subscribed returns the client's channels, sorted.
func (c *wsClient) subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := lo.Keys(c.channels)
	sort.Strings(out)
	return out
}

func (c *wsClient) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exact := c.channels[channel]
	_, all := c.channels[wsChannelAll]
	return exact || all
}

func (c *wsClient) reply(msg wsMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. A full queue drops the frame; a
// queue closed by a concurrent unregister is ignored.
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Send on a closed queue during disconnect
	}()

	select {
	case c.send <- data:
	default:
	}
}
