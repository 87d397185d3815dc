package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/facewatch/internal/detector"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// OverlayMessage is sent to every overlay client for each accepted result.
type OverlayMessage struct {
	Sequence  uint64                 `json:"sequence"`
	Faces     []detector.BoundingBox `json:"faces"`
	Timestamp int64                  `json:"timestamp"`
}

// OverlayHub broadcasts accepted detection results over WebSocket.
type OverlayHub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewOverlayHub creates an empty hub.
func NewOverlayHub(logger *slog.Logger) *OverlayHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayHub{
		logger:  logger.With("component", "overlay-ws"),
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Publish queues res for every client. It never blocks: a client whose
// buffer is full misses the message.
func (h *OverlayHub) Publish(res detector.Result) {
	faces := res.Boxes
	if faces == nil {
		faces = []detector.BoundingBox{}
	}
	msg, err := json.Marshal(OverlayMessage{
		Sequence:  res.Seq,
		Faces:     faces,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("failed to encode overlay message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *OverlayHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OverlayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}

	send := make(chan []byte, sendBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = send
	h.mu.Unlock()

	go h.writePump(conn, send)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
}

func (h *OverlayHub) writePump(conn *websocket.Conn, send chan []byte) {
	defer conn.Close()

	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("overlay client write failed", "error", err)
			h.remove(conn)
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *OverlayHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
}

// Close disconnects every client.
func (h *OverlayHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for conn, send := range h.clients {
		delete(h.clients, conn)
		close(send)
	}
}
