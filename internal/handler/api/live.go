package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	models "CalmPulse/internal/domain/models"
	xlogger "CalmPulse/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 16
	hubPingPeriod  = 30 * time.Second
	maxClientCount = 32
)

// Hub fans emitted anxiety events out to connected WebSocket clients.
// Implements usecase.Broadcaster. Slow clients are disconnected rather than
// buffered indefinitely.
type Hub struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan models.AnxietyEvent
}

func NewHub(logger *xlogger.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// Serve upgrades the request and attaches the client to the hub.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	h.mu.Lock()
	if len(h.clients) >= maxClientCount {
		h.mu.Unlock()
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return nil
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &hubClient{conn: conn, send: make(chan models.AnxietyEvent, clientBuffer)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("live subscriber connected")

	go h.writeLoop(client)
	go h.readLoop(client)
	return nil
}

// Broadcast delivers an event to every client. Never blocks: a client whose
// buffer is full is dropped.
func (h *Hub) Broadcast(ev models.AnxietyEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- ev:
		default:
			h.detachLocked(client)
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer ticker.Stop()
	defer client.conn.Close()

	for {
		select {
		case ev, ok := <-client.send:
			if !ok {
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(eventView(ev)); err != nil {
				h.detach(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.detach(client)
				return
			}
		}
	}
}

// readLoop exists to notice disconnects; inbound frames are discarded.
func (h *Hub) readLoop(client *hubClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.detach(client)
			return
		}
	}
}

func (h *Hub) detach(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(client)
}

func (h *Hub) detachLocked(client *hubClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.logger.Debug("live subscriber detached")
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.detachLocked(client)
		_ = client.conn.Close()
	}
}
