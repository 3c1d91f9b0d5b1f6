package transporthttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventStored   = "event.stored"
	LedgerCleared = "ledger.cleared"

	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 30 * time.Second
	liveSendBuffer = 16
)

// LiveEnvelope wraps every message pushed to dashboard listeners.
type LiveEnvelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type liveClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *LiveHub
}

// LiveHub fans ledger changes out to connected WebSocket listeners. It runs
// until the context passed to NewLiveHub is cancelled.
type LiveHub struct {
	mu         sync.Mutex
	clients    map[string]*liveClient
	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient
	done       <-chan struct{}

	upgrader websocket.Upgrader
	log      *slog.Logger
	now      func() time.Time
	onCount  func(int)
}

// NewLiveHub starts the hub loop. onCount, if set, is called with the number
// of listeners after every change.
func NewLiveHub(ctx context.Context, log *slog.Logger, now func() time.Time, onCount func(int)) *LiveHub {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	h := &LiveHub{
		clients:    make(map[string]*liveClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		done:       ctx.Done(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is a static page that may be served from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		now:     now,
		onCount: onCount,
	}
	go h.run()
	return h
}

func (h *LiveHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.reportCount()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.log.Debug("live listener connected", "client", c.id)
			h.reportCount()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug("live listener disconnected", "client", c.id)
			h.reportCount()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow listener
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
			h.reportCount()
		}
	}
}

func (h *LiveHub) reportCount() {
	if h.onCount != nil {
		h.onCount(h.Count())
	}
}

// Count returns the number of registered listeners.
func (h *LiveHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues a message for every listener. It never blocks; when the
// hub is backed up the message is dropped.
func (h *LiveHub) Broadcast(kind string, data any) {
	b, err := json.Marshal(LiveEnvelope{Type: kind, Data: data, Timestamp: h.now().UnixMilli()})
	if err != nil {
		h.log.Error("live marshal failed", "type", kind, "err", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn("live broadcast dropped", "type", kind)
	}
}

func (h *LiveHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.log.Debug("live upgrade failed", "err", err)
		return
	}
	c := &liveClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, liveSendBuffer),
		hub:  h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only watches for the peer going away; listeners send nothing.
func (c *liveClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("live read error", "client", c.id, "err", err)
			}
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
