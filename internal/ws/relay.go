package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/titorm/nexus-saude-sub001/internal/stream"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 64

	// backlogSize is how many recent points a client receives on connect.
	backlogSize = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients for every relayed point.
type Message struct {
	Stream string       `json:"stream"`
	Type   string       `json:"type"`
	Data   stream.Point `json:"data"`
}

// Relay bridges the in-process event hub to WebSocket clients. Each client
// picks the streams it wants with a ?streams=alerts,vital_signs query
// parameter (all streams by default) and receives points as they publish.
type Relay struct {
	hub    *stream.Hub
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewRelay creates a Relay reading from hub.
func NewRelay(hub *stream.Hub, logger zerolog.Logger) *Relay {
	return &Relay{
		hub:     hub,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (rl *Relay) Run(ctx context.Context) {
	<-ctx.Done()
	rl.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the
// client. Recent points from each selected stream are sent immediately on
// connect. Blocks until the connection closes.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	rl.register(c)
	defer rl.unregister(c)

	streams := rl.selectStreams(r)

	// Backlog first so the UI has data right away.
	for _, name := range streams {
		points, err := rl.hub.Read(name, backlogSize, time.Time{})
		if err != nil {
			continue
		}
		for _, p := range points {
			c.enqueue(rl.encode(name, p))
		}
	}

	subs := make([]string, 0, len(streams))
	for _, name := range streams {
		id := rl.hub.Subscribe(name, func(streamName string, p stream.Point) {
			if !c.enqueue(rl.encode(streamName, p)) {
				// Client's outgoing buffer is full — disconnect it.
				rl.unregister(c)
			}
		}, nil)
		subs = append(subs, id)
	}
	defer func() {
		for _, id := range subs {
			rl.hub.Unsubscribe(id)
		}
	}()

	rl.logger.Debug().
		Strs("streams", streams).
		Str("remote", r.RemoteAddr).
		Msg("websocket client connected")

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (rl *Relay) Count() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}

// --- internal ---------------------------------------------------------------

func (rl *Relay) selectStreams(r *http.Request) []string {
	raw := r.URL.Query().Get("streams")
	if raw == "" {
		return rl.hub.Streams()
	}

	known := make(map[string]bool)
	for _, name := range rl.hub.Streams() {
		known[name] = true
	}

	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if known[name] {
			out = append(out, name)
		}
	}
	return out
}

func (rl *Relay) encode(streamName string, p stream.Point) []byte {
	data, err := json.Marshal(Message{
		Stream: streamName,
		Type:   p.Type,
		Data:   p,
	})
	if err != nil {
		return nil
	}
	return data
}

func (rl *Relay) register(c *client) {
	rl.mu.Lock()
	rl.clients[c] = struct{}{}
	rl.mu.Unlock()
}

func (rl *Relay) unregister(c *client) {
	rl.mu.Lock()
	if _, ok := rl.clients[c]; ok {
		delete(rl.clients, c)
		close(c.send)
	}
	rl.mu.Unlock()
}

func (rl *Relay) closeAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for c := range rl.clients {
		close(c.send)
		delete(rl.clients, c)
	}
}

// enqueue offers data to the client without blocking. Reports false when
// the send buffer is full.
func (c *client) enqueue(data []byte) bool {
	if data == nil {
		return true
	}
	defer func() {
		// The send channel closes on unregister; a concurrent publish may
		// still race the close.
		recover() //nolint:errcheck
	}()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
