// Package websocket pushes dashboard snapshots to connected presenters
// and relays their control messages back into the core.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openfolio/folio/internal/dashboard"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 16,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		// Same-host deployments only; the presenter is served by this
		// process.
		return true
	},
}

// Message is the wire envelope for both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client represents one connected presenter.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	lastPong time.Time
}

// Hub maintains connected clients and broadcasts snapshots. Inbound
// control messages fan into the aggregator trigger ("refresh") and the
// subscription provider ("subscription_changed").
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	latest               func() (dashboard.Snapshot, bool)
	onRefresh            func()
	onSubscriptionChange func()
}

// NewHub creates a hub. latest supplies the initial snapshot for new
// connections; onRefresh and onSubscriptionChange handle inbound control
// messages and may be nil.
func NewHub(latest func() (dashboard.Snapshot, bool), onRefresh, onSubscriptionChange func()) *Hub {
	return &Hub{
		clients:              make(map[*Client]bool),
		broadcast:            make(chan []byte, 64),
		register:             make(chan *Client),
		unregister:           make(chan *Client),
		done:                 make(chan struct{}),
		latest:               latest,
		onRefresh:            onRefresh,
		onSubscriptionChange: onSubscriptionChange,
	}
}

// Run starts the hub's main loop. It returns when stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client", client.id).Msg("WebSocket client connected")
			h.sendInitialSnapshot(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Info().Str("client", client.id).Msg("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than block the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			// Release pump goroutines still trying to register or
			// unregister.
			close(h.done)
			return
		}
	}
}

// BroadcastSnapshot pushes a freshly published snapshot to every client.
// Implements dashboard.Broadcaster.
func (h *Hub) BroadcastSnapshot(snap dashboard.Snapshot) {
	h.send("snapshot", snap)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendInitialSnapshot(client *Client) {
	if h.latest == nil {
		return
	}
	snap, ok := h.latest()
	if !ok {
		return
	}
	data, err := encodeMessage("snapshot", snap)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal initial snapshot")
		return
	}
	select {
	case client.send <- data:
	default:
		log.Warn().Str("client", client.id).Msg("Client send buffer full, skipping initial snapshot")
	}
}

func (h *Hub) send(msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn().Msg("WebSocket broadcast channel full")
	}
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Data: raw})
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 64),
		id:       uuid.NewString(),
		lastPong: time.Now(),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// detach hands the client to the hub's unregister loop, or returns
// immediately once the hub has stopped.
func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.lastPong = time.Now()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("Malformed WebSocket message")
			continue
		}

		switch msg.Type {
		case "refresh":
			if c.hub.onRefresh != nil {
				c.hub.onRefresh()
			}
		case "subscription_changed":
			if c.hub.onSubscriptionChange != nil {
				c.hub.onSubscriptionChange()
			}
		default:
			log.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Ignoring WebSocket message")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
