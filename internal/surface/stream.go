package surface

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/sonos-multiroom-go/internal/auth"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

// Stream message types.
const (
	MsgTypeZone     = "zone"
	MsgTypeGlobal   = "global"
	MsgTypeSnapshot = "snapshot"
	MsgTypeCommand  = "command"
	MsgTypePing     = "ping"
	MsgTypePong     = "pong"
	MsgTypeResponse = "response"
	MsgTypeError    = "error"
)

const (
	sendBufferSize = 64
	maxMessageSize = 4096
	pingInterval   = 30 * time.Second
	pongWait       = 10 * time.Second
	snapshotWait   = 5 * time.Second
)

// StreamMessage is the envelope for every frame on the zone stream.
type StreamMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   any             `json:"payload,omitempty"`
	Command   json.RawMessage `json:"command,omitempty"`
}

// SnapshotPayload is sent once when a client connects.
type SnapshotPayload struct {
	Zones  []zone.Snapshot     `json:"zones"`
	Global zone.GlobalSnapshot `json:"global"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the bearer token.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans zone snapshots out to websocket clients and accepts commands
// from them.
type Hub struct {
	logger  *log.Logger
	state   StateSource
	ctrl    Controller
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
	// Monitor-scoped surfaces get state but cannot send commands.
	monitor bool
	// Frames broadcast before the snapshot is queued are held here.
	ready bool
	held  [][]byte
}

// NewHub creates a stream hub.
func NewHub(state StateSource, ctrl Controller, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		state:   state,
		ctrl:    ctrl,
		clients: make(map[*streamClient]struct{}),
	}
}

// RegisterRoutes mounts GET /v1/zones/stream.
func (h *Hub) RegisterRoutes(router chi.Router) {
	router.Get("/v1/zones/stream", h.ServeHTTP)
}

// PublishZone broadcasts a zone snapshot. It never blocks.
func (h *Hub) PublishZone(snap zone.Snapshot) {
	h.broadcast(MsgTypeZone, snap)
}

// PublishGlobal broadcasts the aggregate snapshot. It never blocks.
func (h *Hub) PublishGlobal(snap zone.GlobalSnapshot) {
	h.broadcast(MsgTypeGlobal, snap)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		c.conn.Close()
	}
}

// ServeHTTP upgrades the request and sends the current state.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("STREAM: upgrade failed: %v", err)
		return
	}

	client := &streamClient{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		monitor: !auth.CanControlFromContext(r.Context()),
	}

	// Register before reading state so no change between the read and the
	// registration is lost. Broadcasts are held until the snapshot is queued.
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), snapshotWait)
	snapshot, err := h.snapshot(ctx)
	cancel()
	if err != nil {
		h.logger.Printf("STREAM: snapshot failed: %v", err)
		h.unregister(client)
		conn.Close()
		return
	}
	client.prime(encode(StreamMessage{Type: MsgTypeSnapshot, Payload: snapshot}))
	h.logger.Printf("STREAM: client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) snapshot(ctx context.Context) (SnapshotPayload, error) {
	zones, err := h.state.Zones(ctx)
	if err != nil {
		return SnapshotPayload{}, err
	}
	global, err := h.state.Global(ctx)
	if err != nil {
		return SnapshotPayload{}, err
	}
	out := SnapshotPayload{Zones: make([]zone.Snapshot, 0, len(zones)), Global: global}
	for i := range zones {
		out.Zones = append(out.Zones, zone.SnapshotOf(&zones[i]))
	}
	return out, nil
}

func (h *Hub) broadcast(msgType string, payload any) {
	data := encode(StreamMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if data == nil {
		return
	}

	h.mu.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.close()
	if existed {
		h.logger.Printf("STREAM: client disconnected (%d total)", count)
	}
}

func encode(msg StreamMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("STREAM: failed to marshal %s message: %v", msg.Type, err)
		return nil
	}
	return data
}

// prime queues the snapshot followed by any frames held while it was
// being built.
func (c *streamClient) prime(snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue(snapshot)
	for _, data := range c.held {
		c.queue(data)
	}
	c.held = nil
	c.ready = true
}

// trySend queues data, dropping it for a client that is not keeping up.
func (c *streamClient) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !c.ready {
		if len(c.held) < sendBufferSize {
			c.held = append(c.held, data)
		}
		return
	}
	c.queue(data)
}

func (c *streamClient) queue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Printf("STREAM: client send buffer full, dropping frame")
	}
}

func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Printf("STREAM: read error: %v", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(data)
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) handleMessage(data []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(MsgTypeError, "", map[string]any{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case MsgTypePing:
		c.reply(MsgTypePong, msg.ID, nil)
	case MsgTypeCommand:
		if c.monitor {
			c.reply(MsgTypeError, msg.ID, map[string]any{"message": "surface is paired for monitoring only"})
			return
		}
		var cmd Command
		if err := json.Unmarshal(msg.Command, &cmd); err != nil {
			c.reply(MsgTypeError, msg.ID, map[string]any{"message": "invalid command"})
			return
		}
		if err := Apply(c.hub.ctrl, cmd, "stream command"); err != nil {
			c.reply(MsgTypeError, msg.ID, map[string]any{"message": err.Error()})
			return
		}
		c.reply(MsgTypeResponse, msg.ID, map[string]any{"action": cmd.Action, "status": "accepted"})
	default:
		c.reply(MsgTypeError, msg.ID, map[string]any{"message": "unknown message type: " + msg.Type})
	}
}

func (c *streamClient) reply(msgType, id string, payload any) {
	if data := encode(StreamMessage{Type: msgType, ID: id, Payload: payload}); data != nil {
		c.trySend(data)
	}
}
