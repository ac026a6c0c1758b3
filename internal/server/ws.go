package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is one websocket connection. Writes serialize on mu; gorilla
// allows a single concurrent writer per connection.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex

	userID   uint
	username string
	guest    bool
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *client) send(event string, data any) {
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) sendError(reason string) {
	c.send("error", reason)
}

// wsHub tracks connections and their room membership, keyed by room code.
type wsHub struct {
	mu      sync.Mutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

func newWSHub() *wsHub {
	return &wsHub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

func (h *wsHub) AddClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *wsHub) Join(code string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.rooms[code]
	if group == nil {
		group = make(map[string]*client)
		h.rooms[code] = group
	}
	group[c.id] = c
}

func (h *wsHub) Leave(code string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.rooms[code]; ok {
		delete(group, c.id)
		if len(group) == 0 {
			delete(h.rooms, code)
		}
	}
}

// RemoveClient drops a connection from every room and closes it.
func (h *wsHub) RemoveClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	for code, group := range h.rooms {
		delete(group, c.id)
		if len(group) == 0 {
			delete(h.rooms, code)
		}
	}
	_ = c.conn.Close()
}

// SendTo delivers an event to a single connection if it is still known.
func (h *wsHub) SendTo(connID, event string, data any) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	h.mu.Unlock()
	if ok {
		c.send(event, data)
	}
}

// Broadcast delivers an event to every connection joined to the room.
func (h *wsHub) Broadcast(code, event string, data any) {
	h.mu.Lock()
	group := h.rooms[code]
	conns := make([]*client, 0, len(group))
	for _, c := range group {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.send(event, data)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, username: "Guest", guest: true}
	if token := r.URL.Query().Get("token"); token != "" {
		// An invalid token degrades to a guest connection.
		if claims, err := s.parseToken(token); err == nil {
			c.userID = claims.UserID
			c.username = claims.Username
			c.guest = false
		} else {
			s.log.Warnw("ws auth failed", "remote", r.RemoteAddr, "error", err)
		}
	}
	s.hub.AddClient(c)
	s.log.Infow("ws connected", "conn_id", c.id, "remote", r.RemoteAddr, "user", c.username, "guest", c.guest)
	go s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer s.handleDisconnect(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			s.log.Infow("ws disconnected", "conn_id", c.id, "error", err)
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.sendError("Invalid message")
			continue
		}
		s.dispatch(c, env)
	}
}
