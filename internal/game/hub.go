package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Client is one connected observer. The mutex serializes writes to the
// underlying connection, which fasthttp websockets require.
type Client struct {
	conn   *websocket.Conn
	wallet string
	mu     sync.Mutex
}

// Hub fans out engine events to every connected client. Registration,
// removal and broadcast all flow through channels into Run so the client
// set has a single owner.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan WSMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s (total: %d)", client.wallet, h.GetClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				log.Printf("[WS] Client disconnected: %s (total: %d)", client.wallet, len(h.clients))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[WS] Marshal error: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				go client.send(data)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event for all clients. It never blocks the engine:
// when the queue is full the message is dropped, which for tick updates is
// strictly better than stalling the round clock.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	select {
	case h.broadcast <- WSMessage{Type: msgType, Data: payload}:
	default:
		log.Printf("[WS] Broadcast queue full, dropping %s", msgType)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Write error for %s: %v", c.wallet, err)
	}
}

// Send delivers a direct (non-broadcast) message to one client.
func (c *Client) Send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Send marshal error: %v", err)
		return
	}
	c.send(data)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, wallet string) *Client {
	client := &Client{
		conn:   conn,
		wallet: wallet,
	}
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
