package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// WebSocket event types streamed to the panel.
const (
	eventLogBuffer         = "log_buffer"
	eventNewLog            = "new_log"
	eventPerformanceUpdate = "performance_update"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The panel is served from the same host; cross-origin browsers are
		// not a concern for a local control surface.
		return true
	},
}

// wsEvent is the envelope for every streamed message.
type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans log entries and performance updates out to connected WebSocket
// clients. Slow clients are disconnected rather than allowed to block the
// stream.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logs    *weblog.Buffer
	log     *weblog.Log
	done    chan struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsEvent
}

// NewHub creates a hub streaming from the given log ring.
func NewHub(logs *weblog.Buffer, log *weblog.Log) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logs:    logs,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Run pumps new log entries to clients until Close is called.
func (h *Hub) Run() {
	entries, cancel := h.logs.Subscribe()
	defer cancel()

	for {
		select {
		case entry := <-entries:
			h.Broadcast(wsEvent{Type: eventNewLog, Data: entry})
		case <-h.done:
			return
		}
	}
}

// Close disconnects every client and stops the pump.
func (h *Hub) Close() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// PublishMetric streams one completed synthesis record.
func (h *Hub) PublishMetric(record core.MetricRecord) {
	h.Broadcast(wsEvent{Type: eventPerformanceUpdate, Data: record})
}

// Broadcast queues an event for every connected client.
func (h *Hub) Broadcast(event wsEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Client cannot keep up; drop it.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP upgrades the connection and replays the full log history before
// streaming live events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed: %v", err)

		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan wsEvent, wsSendBuffer),
	}

	// History first, so the client starts with the same view as /logs.
	client.send <- wsEvent{Type: eventLogBuffer, Data: h.logs.History()}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(client *wsClient) {
	defer func() { _ = client.conn.Close() }()

	for event := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

		err := client.conn.WriteJSON(event)
		if err != nil {
			h.drop(client)

			return
		}
	}
}

// readPump discards inbound frames; its job is detecting disconnects.
func (h *Hub) readPump(client *wsClient) {
	for {
		_, _, err := client.conn.ReadMessage()
		if err != nil {
			h.drop(client)

			return
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.clients[client]
	if ok {
		close(client.send)
		delete(h.clients, client)
	}

	_ = client.conn.Close()
}
