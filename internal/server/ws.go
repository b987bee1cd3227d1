package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/posecue/internal/app"
)

const (
	liveBuffer   = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI
	},
}

// liveMessage is sent for every status update. The snapshot taken after the
// update lets clients render without keeping state.
type liveMessage struct {
	Update   app.Update   `json:"update"`
	Snapshot app.Snapshot `json:"snapshot"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan liveMessage
	done chan struct{}
}

// LiveHandler pushes pose and action updates to WebSocket clients.
type LiveHandler struct {
	status *app.Status
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
	cancel  func()
}

// NewLiveHandler creates a LiveHandler subscribed to status.
func NewLiveHandler(status *app.Status, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LiveHandler{
		status:  status,
		logger:  logger,
		clients: make(map[*liveClient]struct{}),
	}
	h.cancel = status.Subscribe(h.broadcast)
	return h
}

// ServeHTTP upgrades the connection and streams updates until the client
// goes away. The current snapshot is sent first.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &liveClient{
		conn: conn,
		send: make(chan liveMessage, liveBuffer),
		done: make(chan struct{}),
	}
	c.send <- liveMessage{Update: app.Update{Kind: "snapshot", At: time.Now()}, Snapshot: h.status.Snapshot()}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("live client connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)

	// Reads only detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	h.logger.Debug("live client disconnected", zap.String("remote", r.RemoteAddr))
}

func (h *LiveHandler) writeLoop(c *liveClient) {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("live write failed", zap.Error(err))
				h.remove(c)
				return
			}
		}
	}
}

// broadcast queues u for every client. Slow clients miss updates.
func (h *LiveHandler) broadcast(u app.Update) {
	msg := liveMessage{Update: u, Snapshot: h.status.Snapshot()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("live client lagging, update dropped")
		}
	}
}

func (h *LiveHandler) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
}

// Clients returns the number of connected clients.
func (h *LiveHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from status and disconnects every client.
func (h *LiveHandler) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.done)
	}
}
