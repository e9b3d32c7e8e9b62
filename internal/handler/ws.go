package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development, configure for production
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// streamEvent is one envelope pushed to WebSocket clients. DeviceID is
// kept outside the payload for per-client filtering.
type streamEvent struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"device_id"`
	Data     json.RawMessage `json:"data"`
}

// WSMessage represents a WebSocket message from a client
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client represents one WebSocket client connection
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *WSHub
	DeviceID string // empty means all devices
}

// WSHub fans NATS location and alarm events out to WebSocket clients
type WSHub struct {
	clients    map[*Client]bool
	broadcast  chan *streamEvent
	register   chan *Client
	unregister chan *Client
	natsConn   *nats.Conn
	locSub     *nats.Subscription
	alarmSub   *nats.Subscription
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(nc *nats.Conn) *WSHub {
	return &WSHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *streamEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		natsConn:   nc,
	}
}

func (h *WSHub) enqueue(eventType string, data []byte) {
	var probe struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		log.Printf("[WS] Failed to unmarshal %s event: %v", eventType, err)
		return
	}
	h.broadcast <- &streamEvent{Type: eventType, DeviceID: probe.DeviceID, Data: data}
}

// Run starts the hub's event loop
func (h *WSHub) Run() {
	locSub, err := h.natsConn.Subscribe("road.uplink.LOCATION", func(msg *nats.Msg) {
		h.enqueue("location", msg.Data)
	})
	if err != nil {
		log.Printf("[WS] Failed to subscribe to location updates: %v", err)
		return
	}
	h.locSub = locSub

	alarmSub, err := h.natsConn.Subscribe("road.alarm.*", func(msg *nats.Msg) {
		h.enqueue("alarm", msg.Data)
	})
	if err != nil {
		log.Printf("[WS] Failed to subscribe to alarm updates: %v", err)
		return
	}
	h.alarmSub = alarmSub

	log.Println("[WS] Hub started, subscribed to location and alarm updates")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s, total clients: %d", client.ID, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected: %s, total clients: %d", client.ID, len(h.clients))

		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				if client.DeviceID == "" || client.DeviceID == event.DeviceID {
					clients = append(clients, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.Send <- payload:
				default:
					// Send buffer full, drop the client
					h.unregister <- client
				}
			}
		}
	}
}

// Stop stops the hub and cleans up resources
func (h *WSHub) Stop() {
	if h.locSub != nil {
		h.locSub.Unsubscribe()
	}
	if h.alarmSub != nil {
		h.alarmSub.Unsubscribe()
	}
	h.mu.Lock()
	for client := range h.clients {
		close(client.Send)
		client.Conn.Close()
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReadPump handles incoming messages from the client
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Client %s read error: %v", c.ID, err)
			}
			break
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err == nil {
			switch wsMsg.Type {
			case "subscribe":
				var data struct {
					DeviceID string `json:"device_id"`
				}
				if err := json.Unmarshal(wsMsg.Data, &data); err == nil {
					c.DeviceID = data.DeviceID
					log.Printf("[WS] Client %s subscribed to device %q", c.ID, c.DeviceID)
				}
			case "ping":
				select {
				case c.Send <- []byte(`{"type":"pong"}`):
				default:
				}
			}
		}
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub *WSHub
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleStream upgrades the connection and starts the client pumps
func (h *WSHandler) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = fmt.Sprintf("client-%d", time.Now().UnixNano())
	}

	client := &Client{
		ID:       clientID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      h.hub,
		DeviceID: c.Query("device_id"),
	}

	h.hub.register <- client
	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns hub statistics
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected_clients": h.hub.GetClientCount()})
}
