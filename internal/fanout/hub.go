// Package fanout implements the push-channel Fan-out Layer of
// spec.md §4.8: a WebSocket hub that sends a full state snapshot on
// connect, forwards bus publications to every live connection, and
// independently broadcasts a metrics+health frame every 5s.
//
// Grounded on control_plane/ws_hub.go (connection registry, ping/pong
// liveness, per-tenant broadcast loop) and control_plane/api_stream.go
// (the upgrade handler's ping routine and read pump), adapted from a
// per-tenant dashboard stream to a single fleet-wide stream with a
// mutex-guarded map in place of the teacher's register/unregister
// channels, matching the mutex convention the rest of this module uses
// (internal/state, internal/metrics) instead of channel actors.
package fanout

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gastown-ops/rigwatch/internal/bus"
	"github.com/gastown-ops/rigwatch/internal/model"
)

const (
	maxConnections = 500
	writeTimeout   = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	metricsTick    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MetricsRecorder is the subset of internal/metrics.Collector the hub
// needs to report connection lifecycle counters.
type MetricsRecorder interface {
	RecordWSConnection()
	RecordWSDisconnection()
	RecordWSMessage()
}

// TimelineProvider answers "state at time T" advisory queries over the
// Event Buffer.
type TimelineProvider interface {
	StateAt(t time.Time) (model.Snapshot, bool)
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Hub is the fleet-wide WebSocket fan-out point.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	bus             *bus.Bus
	snapshot        func() model.Snapshot
	metricsSnapshot func() model.MetricsSnapshot
	health          func() model.HealthScore
	pollNow         func()
	timeline        TimelineProvider
	recorder        MetricsRecorder
	logger          *log.Logger
	unsubs          []func()
}

// Frame is the {type, data} envelope every push message shares,
// matching spec.md §6's wire format (initial connect frame is always
// {type:"state", data: <snapshot>}).
type Frame struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// New constructs a Hub. snapshot/metricsSnapshot/health feed the
// connect-time and periodic broadcasts; pollNow and timeline answer
// advisory client requests and may be nil if unsupported.
func New(
	b *bus.Bus,
	snapshot func() model.Snapshot,
	metricsSnapshot func() model.MetricsSnapshot,
	health func() model.HealthScore,
	recorder MetricsRecorder,
	pollNow func(),
	timeline TimelineProvider,
	logger *log.Logger,
) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		clients:         make(map[*client]struct{}),
		bus:             b,
		snapshot:        snapshot,
		metricsSnapshot: metricsSnapshot,
		health:          health,
		pollNow:         pollNow,
		timeline:        timeline,
		recorder:        recorder,
		logger:          logger,
	}
	h.subscribeBus()
	return h
}

func (h *Hub) subscribeBus() {
	forward := func(msg bus.Message) error {
		h.broadcast(Frame{Type: msg.Type, Timestamp: msg.Timestamp, Data: msg.Payload})
		return nil
	}
	for _, topic := range []string{
		bus.TopicUpdate, bus.TopicEvent, bus.TopicError,
		bus.TopicErrorPatterns, bus.TopicAlertRaised, bus.TopicAlertResolved,
	} {
		h.unsubs = append(h.unsubs, h.bus.Subscribe(topic, forward))
	}
}

// Close unsubscribes from the bus. It does not close client
// connections; callers drive that via the lifecycle controller's
// Shutdown.
func (h *Hub) Close() {
	for _, unsub := range h.unsubs {
		unsub()
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket, sends the initial
// state frame, and pumps pings/reads until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("fanout: upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if len(h.clients) >= maxConnections {
		h.mu.Unlock()
		conn.Close()
		h.logger.Printf("fanout: rejected connection, max (%d) reached", maxConnections)
		return
	}
	c := &client{conn: conn}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.recorder != nil {
		h.recorder.RecordWSConnection()
	}

	if h.snapshot != nil {
		if err := c.send(Frame{Type: "state", Timestamp: time.Now(), Data: h.snapshot()}); err != nil {
			h.logger.Printf("fanout: initial state send failed: %v", err)
		}
	}

	defer h.unregister(c)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(c, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Printf("fanout: read error: %v", err)
			}
			return
		}
		if h.recorder != nil {
			h.recorder.RecordWSMessage()
		}
		h.handleAdvisory(c, data)
	}
}

func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
		if h.recorder != nil {
			h.recorder.RecordWSDisconnection()
		}
	}
}

type advisoryMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// handleAdvisory parses an incoming client frame. Unknown messages
// (including malformed JSON) are ignored, per spec.md §4.8.
func (h *Hub) handleAdvisory(c *client, data []byte) {
	var msg advisoryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	switch msg.Type {
	case "pollNow", "poll now":
		if h.pollNow != nil {
			h.pollNow()
		}
	case "stateAt", "state at time T":
		if h.timeline == nil {
			return
		}
		snap, ok := h.timeline.StateAt(msg.Timestamp)
		if !ok {
			return
		}
		_ = c.send(Frame{Type: "state", Timestamp: time.Now(), Data: snap})
	}
}

// broadcast sends frame to every connection whose send succeeds;
// failures are logged and that client is unregistered, never blocking
// delivery to the rest.
func (h *Hub) broadcast(frame Frame) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			h.logger.Printf("fanout: send failed, dropping client: %v", err)
			go h.unregister(c)
		}
	}
}

// Run drives the periodic metrics broadcast until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(metricsTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if h.metricsSnapshot == nil || h.health == nil {
				continue
			}
			h.broadcast(Frame{
				Type:      "metrics",
				Timestamp: time.Now(),
				Data: map[string]interface{}{
					"metrics": h.metricsSnapshot(),
					"health":  h.health(),
				},
			})
		}
	}
}

// Shutdown broadcasts a shutdown frame and closes every connection,
// waiting at most the given bound per client, per spec.md §4.9.
func (h *Hub) Shutdown(perClientWait time.Duration) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(perClientWait))
		_ = c.conn.WriteJSON(Frame{Type: "shutdown", Timestamp: time.Now()})
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
