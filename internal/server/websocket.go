package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/metrics"
	"github.com/kkrriders/airra/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 32
)

// StreamEvent is one message on the /ws/incidents stream.
type StreamEvent struct {
	Type      string    `json:"type"` // "incident" | "action"
	Timestamp time.Time `json:"timestamp"`
	Incident  any       `json:"incident,omitempty"`
	Action    any       `json:"action,omitempty"`
}

// Hub fans incident and action updates out to websocket subscribers.
// A subscriber that cannot keep up is dropped rather than blocking the
// pipeline.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds a hub enforcing the allowed-origins policy on upgrade.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(n))

	go h.writePump(c)
	h.readPump(c)
}

// readPump consumes control frames and detects the peer closing.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(n))
	_ = c.conn.Close()
}

// broadcast queues the event on every subscriber, dropping the slow ones.
func (h *Hub) broadcast(ev StreamEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c)
	}
}

// NotifyIncident publishes an incident update to all subscribers.
func (h *Hub) NotifyIncident(inc *models.Incident) {
	h.broadcast(StreamEvent{Type: "incident", Timestamp: time.Now().UTC(), Incident: inc})
}

// NotifyAction publishes an action update to all subscribers.
func (h *Hub) NotifyAction(a *models.Action) {
	h.broadcast(StreamEvent{Type: "action", Timestamp: time.Now().UTC(), Action: a})
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.WebSocketConnections.Set(0)
}
