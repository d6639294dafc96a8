package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

const wsBufferSize = 256

// wsMessage envelopes a live-update push over the /ws connection.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	wsTypeTaskUpdate  = "task_update"
	wsTypeAlert       = "alert"
	wsTypeWorkerEvent = "worker_event"
)

// client is one connected WebSocket browser/dashboard.
type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

// hub fans live updates out to every connected client. Only task
// updates are broadcast; the alert and worker_event message types are
// declared but nothing sends them.
type hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, wsBufferSize),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) broadcastJSON(msgType string, data interface{}) {
	raw, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		return
	}
	h.broadcast <- raw
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

var upgrader = websocket.Upgrader{CheckOrigin: checkWebSocketOrigin}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, wsBufferSize)}
	s.hub.register <- c
	go c.readPump()
	go c.writePump()
}
