package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type clientMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type heartbeatEvent struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

type sessionEvent struct {
	SessionID string `json:"sessionId"`
}

// HandlerConfig wires socket authentication.
type HandlerConfig struct {
	// VerifyAdmin checks the ?token= of admin sockets.
	VerifyAdmin func(token string) error
	// KnownSession reports whether ?session= names a live player.
	KnownSession func(ctx context.Context, sessionID string) bool
	// AllowedOrigins limits browser origins; empty allows any.
	AllowedOrigins []string
	Logger         *log.Logger
}

// Handler upgrades /ws requests and serves one socket per request.
type Handler struct {
	hub      *Hub
	cfg      HandlerConfig
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket handler for the given hub.
func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[EVENTS] ", log.LstdFlags|log.LUTC)
	}

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 || allowed["*"] {
				return true
			}
			return allowed[origin]
		},
	}

	return &Handler{hub: hub, cfg: cfg, logger: logger, upgrader: upgrader}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := &client{send: make(chan []byte, sendBuffer)}

	switch {
	case q.Get("token") != "":
		if h.cfg.VerifyAdmin == nil || h.cfg.VerifyAdmin(q.Get("token")) != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		c.room = RoomAdmin
	case q.Get("session") != "":
		sessionID := q.Get("session")
		if h.cfg.KnownSession == nil || !h.cfg.KnownSession(r.Context(), sessionID) {
			http.Error(w, "unknown session", http.StatusUnauthorized)
			return
		}
		c.room = RoomGame
		c.sessionID = sessionID
	default:
		http.Error(w, "missing token or session", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade_failed room=%s error=%v", c.room, err)
		return
	}
	c.conn = conn

	h.hub.register(c)
	go h.hub.writePump(c)
	h.logger.Printf("socket_connected room=%s session_id=%s", c.room, c.sessionID)

	h.readLoop(c)
}

func (h *Handler) readLoop(c *client) {
	defer func() {
		if h.hub.unregister(c) {
			h.logger.Printf("socket_disconnected room=%s session_id=%s", c.room, c.sessionID)
		}
		if c.room == RoomGame {
			h.hub.Publish(RoomAdmin, PlayerDisconnected, sessionEvent{SessionID: c.sessionID})
		}
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.room != RoomGame {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", c.sessionID, err)
			continue
		}

		switch msg.Type {
		case PlayerHeartbeat:
			h.hub.Publish(RoomAdmin, PlayerHeartbeat, heartbeatEvent{
				SessionID: c.sessionID,
				Timestamp: time.Now().UnixMilli(),
			})
		case "player:progress":
			data := msg.Data
			if len(data) == 0 {
				data, _ = json.Marshal(sessionEvent{SessionID: c.sessionID})
			}
			h.hub.Publish(RoomAdmin, PlayerUpdated, data)
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, c.sessionID)
		}
	}
}
