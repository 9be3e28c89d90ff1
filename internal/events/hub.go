// Package events fans game events out to connected websocket clients.
package events

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Room groups sockets that receive the same events.
type Room string

const (
	RoomAdmin Room = "admin"
	RoomGame  Room = "game"
)

// Event types published by the server.
const (
	PlayerJoined       = "player:joined"
	PlayerUpdated      = "player:updated"
	PlayerKicked       = "player:kicked"
	PlayerHeartbeat    = "player:heartbeat"
	PlayerDisconnected = "player:disconnected"
	GamePaused         = "game:paused"
	GameReset          = "game:reset"
	GameWinner         = "game:winner"
	LeaderboardUpdate  = "leaderboard:update"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Event is the envelope written to sockets.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher is what the game service needs from the hub.
type Publisher interface {
	Publish(room Room, eventType string, data any)
	Broadcast(eventType string, data any)
}

type client struct {
	conn      *websocket.Conn
	room      Room
	sessionID string
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub tracks connected clients per room.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[Room]map[*client]struct{}
	logger  *log.Logger
	dropped uint64
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stdout, "[EVENTS] ", log.LstdFlags|log.LUTC)
	}
	return &Hub{
		rooms: map[Room]map[*client]struct{}{
			RoomAdmin: {},
			RoomGame:  {},
		},
		logger: logger,
		now:    time.Now,
	}
}

// Publish sends an event to every client in room. Clients whose buffer is
// full miss the event rather than stalling the caller.
func (h *Hub) Publish(room Room, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: h.now().UnixMilli()})
	if err != nil {
		h.logger.Printf("publish_marshal_failed type=%s error=%v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			h.dropped++
			h.logger.Printf("event_dropped type=%s room=%s session_id=%s", eventType, room, c.sessionID)
		}
	}
}

// Broadcast publishes to every room.
func (h *Hub) Broadcast(eventType string, data any) {
	h.Publish(RoomAdmin, eventType, data)
	h.Publish(RoomGame, eventType, data)
}

// Count returns the number of clients in room.
func (h *Hub) Count(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Dropped returns how many events were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for c := range clients {
			c.close()
		}
		h.rooms[room] = map[*client]struct{}{}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.rooms[c.room][c] = struct{}{}
	h.mu.Unlock()
}

// unregister reports whether the client was still registered.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[c.room][c]; !ok {
		return false
	}
	delete(h.rooms[c.room], c)
	c.close()
	return true
}

// writePump drains the client's queue onto the socket.
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(c)
			// Drain so Publish never sees a half-closed client.
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
