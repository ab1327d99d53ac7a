package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okaypadak/everup-backend/internal/application/constant"
)

// WebsocketConnectionRepository tracks the live signaling connection of each
// peer. Room operations use it to deliver directed replies and broadcasts,
// and to force-close the connection of a kicked peer.
type WebsocketConnectionRepository interface {
	Add(clientID string, conn *websocket.Conn)
	Remove(clientID string)

	// Write sends one JSON payload to the peer's connection. Unknown peers
	// and write failures are logged, not returned: a broadcast must not
	// abort because one member's socket is gone.
	Write(clientID string, payload any)

	// CloseWithCode sends a close control frame and tears the connection
	// down. Used for kick/ban, where the close is the protocol.
	CloseWithCode(clientID string, code int, reason string)
}

// safeWS serializes writes; gorilla allows at most one concurrent writer.
type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type wsConnectionRepository struct {
	// wsConns maps client id -> connection.
	wsConns map[string]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[string]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(clientID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wsConns[clientID] = &safeWS{conn: conn}
}

func (w *wsConnectionRepository) Remove(clientID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.wsConns, clientID)
}

func (w *wsConnectionRepository) Write(clientID string, payload any) {
	safews, ok := w.getSafeWS(clientID)
	if !ok {
		return
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	if err := safews.conn.WriteJSON(payload); err != nil {
		slog.Error("write to websocket", slog.String(constant.ClientID, clientID), slog.Any(constant.Error, err))
	}
}

func (w *wsConnectionRepository) CloseWithCode(clientID string, code int, reason string) {
	safews, ok := w.getSafeWS(clientID)
	if !ok {
		return
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	if err := safews.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		deadline,
	); err != nil {
		slog.Error("write close frame", slog.String(constant.ClientID, clientID), slog.Any(constant.Error, err))
	}

	// Unblocks the connection's read loop, which owns the teardown.
	_ = safews.conn.Close()
}

func (w *wsConnectionRepository) getSafeWS(clientID string) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[clientID]
	return conn, ok
}
