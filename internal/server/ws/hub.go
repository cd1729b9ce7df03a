// Package ws streams committed ledger events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// replayLimit caps how many stream entries a reconnecting client gets.
	replayLimit = 500
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // topics, "*" suffix matches a prefix
	mu   sync.RWMutex

	sendMu sync.Mutex // guards closed and the close of send
	closed bool
}

// subscribeMsg is sent by clients to change their topics, e.g.
//
//	{"action":"subscribe","topics":["market:3"]}
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// envelope is what clients receive for each event.
type envelope struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	StreamID string          `json:"stream_id,omitempty"`
	Event    json.RawMessage `json:"event"`
}

// routing is the part of an event the hub reads to pick a topic.
type routing struct {
	MarketID uint64 `json:"market_id"`
}

// Config selects where the hub reads events from. Channel and Stream are
// only used when the hub is given a SignalBus.
type Config struct {
	Channel   string
	Stream    string
	StartedAt time.Time
}

// Hub fans events out to connected clients. Events arrive either from a
// SignalBus subscription (multi-process deployments) or directly through
// Publish when the hub is registered as an engine event sink.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run returns
	stopOnce   sync.Once
	bus        domain.SignalBus
	cfg        Config
	mu         sync.RWMutex
	logger     *slog.Logger
}

var _ domain.EventSink = (*Hub)(nil)

type broadcastMsg struct {
	topic string
	data  []byte
}

// NewHub creates a hub. bus may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Topic returns the topic an event is delivered on.
func Topic(marketID uint64) string {
	if marketID == 0 {
		return "house"
	}
	return "market:" + strconv.FormatUint(marketID, 10)
}

// Run handles registration and broadcasting until ctx is cancelled. Once it
// returns, new connections are turned away and disconnects no longer wait
// on the hub.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.done) })
	if h.bus != nil && h.cfg.Channel != "" {
		go h.subscribe(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.ClientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.ClientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.topic) {
					continue
				}
				if !c.trySend(msg.data) {
					h.logger.Warn("ws: dropping message for slow client", slog.String("topic", msg.topic))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Name identifies the sink in logs.
func (h *Hub) Name() string { return "ws_hub" }

// Publish broadcasts events to subscribed clients without blocking on
// slow consumers.
func (h *Hub) Publish(ctx context.Context, events []domain.Event) error {
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		h.enqueue(ctx, Topic(e.MarketID), "", raw)
	}
	return nil
}

func (h *Hub) subscribe(ctx context.Context) {
	msgs, err := h.bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe", slog.String("channel", h.cfg.Channel), slog.String("error", err.Error()))
		return
	}
	h.logger.Info("ws: subscribed", slog.String("channel", h.cfg.Channel))

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", h.cfg.Channel))
				return
			}
			var r routing
			if err := json.Unmarshal(raw, &r); err != nil {
				h.logger.Warn("ws: undecodable event", slog.String("error", err.Error()))
				continue
			}
			h.enqueue(ctx, Topic(r.MarketID), "", raw)
		}
	}
}

func (h *Hub) enqueue(ctx context.Context, topic, streamID string, raw []byte) {
	data, err := json.Marshal(envelope{Type: "event", Topic: topic, StreamID: streamID, Event: raw})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- broadcastMsg{topic: topic, data: data}:
	case <-ctx.Done():
	default:
		h.logger.WarnContext(ctx, "ws: broadcast queue full, dropping event", slog.String("topic", topic))
	}
}

// HandleWS upgrades the request and registers the client. Optional query
// parameters: topics=market:1,house selects topics (default all) and
// since=<stream id> replays stream entries after that id.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: parseTopics(r.URL.Query().Get("topics")),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	c.sendHello()
	if since := r.URL.Query().Get("since"); since != "" {
		c.replay(r.Context(), since)
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func parseTopics(v string) map[string]bool {
	subs := make(map[string]bool)
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			subs[t] = true
		}
	}
	if len(subs) == 0 {
		subs["*"] = true
	}
	return subs
}

func (c *client) readPump() {
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Topics {
			c.subs[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Topics {
			delete(c.subs, t)
		}
	}
}

// sendHello lets clients mark the connection healthy before any event.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"type":           "hello",
		"uptime_seconds": int64(time.Since(c.hub.cfg.StartedAt).Seconds()),
		"replay":         c.hub.bus != nil && c.hub.cfg.Stream != "",
	})
	if err != nil {
		return
	}
	c.trySend(msg)
}

// replay pushes stream entries after lastID directly to this client.
func (c *client) replay(ctx context.Context, lastID string) {
	h := c.hub
	if h.bus == nil || h.cfg.Stream == "" {
		return
	}
	entries, err := h.bus.StreamRead(ctx, h.cfg.Stream, lastID, replayLimit)
	if err != nil {
		h.logger.Warn("ws: replay failed", slog.String("since", lastID), slog.String("error", err.Error()))
		return
	}
	for _, m := range entries {
		var r routing
		if json.Unmarshal(m.Payload, &r) != nil {
			continue
		}
		topic := Topic(r.MarketID)
		if !c.isSubscribed(topic) {
			continue
		}
		data, err := json.Marshal(envelope{Type: "replay", Topic: topic, StreamID: m.ID, Event: m.Payload})
		if err != nil {
			continue
		}
		if !c.trySend(data) {
			return
		}
	}
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the hub already closed the client.
func (c *client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close ends writePump. Safe to call more than once.
func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// isSubscribed matches exact topics and "prefix*" wildcards.
func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[topic] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
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
