package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/okaypadak/everup-backend/internal/application/config"
	"github.com/okaypadak/everup-backend/internal/application/constant"
	"github.com/okaypadak/everup-backend/internal/application/metric"
	"github.com/okaypadak/everup-backend/internal/domain/events"
	"github.com/okaypadak/everup-backend/internal/domain/voice"
	"github.com/okaypadak/everup-backend/internal/infra/adapters/memory"
	"github.com/okaypadak/everup-backend/internal/infra/appctx"
	"github.com/okaypadak/everup-backend/internal/usecase"
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	cfg         *config.Config
	roomUsecase usecase.RoomUsecase
	wsConnRepo  memory.WebsocketConnectionRepository
}

func NewWebSocketHandler(
	cfg *config.Config,
	roomUsecase usecase.RoomUsecase,
	wsConnRepo memory.WebsocketConnectionRepository,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		cfg:         cfg,
		roomUsecase: roomUsecase,
		wsConnRepo:  wsConnRepo,
	}
}

// connection is the per-socket state. It is touched only by the socket's
// read loop; message handling per connection is strictly sequential.
type connection struct {
	clientID string
	username string
	roomID   string

	window    messageWindow
	leaveOnce sync.Once
}

// Handle supervises one signaling connection from upgrade to teardown. The
// identity is already verified by the auth middleware; a request without one
// never reaches this handler.
func (h *WebSocketHandler) Handle(c echo.Context) error {
	identity, ok := appctx.Identity(c.Request().Context())
	if !ok {
		return fmt.Errorf("get identity from context")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	conn := &connection{
		clientID: uuid.NewString(),
		username: identity.Name,
		window:   newMessageWindow(h.cfg.Voice.RateLimitWindow, h.cfg.Voice.RateLimitMax),
	}

	metric.IncrementWSActiveConnections()
	defer metric.DecrementWSActiveConnections()

	h.wsConnRepo.Add(conn.clientID, ws)
	defer h.wsConnRepo.Remove(conn.clientID)

	// The room must reclaim this peer no matter how the socket dies, and
	// must do so exactly once.
	defer conn.leaveOnce.Do(func() {
		if conn.roomID == "" {
			return
		}
		if err := h.roomUsecase.Leave(c.Request().Context(), conn.roomID, conn.clientID); err != nil {
			slog.Error("leave on disconnect",
				slog.Any(constant.Error, err),
				slog.String(constant.ClientID, conn.clientID),
			)
		}
	})

	slog.Info("signaling connection established",
		slog.String(constant.ClientID, conn.clientID),
		slog.String(constant.UserID, identity.Subject),
	)

	h.wsConnRepo.Write(conn.clientID, events.New("connected", events.ConnectedEvent{
		ClientID: conn.clientID,
		Username: identity.Name,
	}))

	timeout := h.cfg.Voice.HeartbeatTimeout

	if err = ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(timeout))
	})

	done := make(chan struct{})
	defer close(done)

	go h.heartbeat(c.Request().Context(), ws, done)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(conn.clientID, err)
			return nil
		}

		// Any inbound traffic counts as liveness.
		_ = ws.SetReadDeadline(time.Now().Add(timeout))

		if !conn.window.Allow(time.Now()) {
			metric.CountRateLimited()
			h.replyError(conn.clientID, voice.ErrRateLimited)
			continue
		}

		var msg events.Message
		if err = json.Unmarshal(raw, &msg); err != nil {
			h.wsConnRepo.Write(conn.clientID, events.New("error", events.ErrorEvent{
				Code:    "bad-message",
				Message: "malformed message",
			}))
			continue
		}

		metric.CountSignalMessage(msg.Type)

		if err = h.handleMessage(c.Request().Context(), conn, &msg); err != nil {
			h.replyError(conn.clientID, err)
		}
	}
}

// heartbeat probes the socket until it dies or the request context ends. A
// peer that stops answering is reaped by the read deadline.
func (h *WebSocketHandler) heartbeat(ctx context.Context, ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.Voice.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage is the dispatch table: one message type, one room operation,
// one directed reply. Broadcasts happen inside the room operations.
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *connection, msg *events.Message) error {
	switch msg.Type {
	case "ping":
		// Liveness only; no room lookup.
		h.wsConnRepo.Write(conn.clientID, events.New("pong", map[string]int64{"t": time.Now().UnixMilli()}))
		return nil

	case "join":
		var ev events.JoinEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal join: %w", err)
		}

		username := ev.Username
		if username == "" {
			username = conn.username
		}

		// One room at a time; switching rooms implies leaving the old one.
		if conn.roomID != "" && conn.roomID != ev.RoomID {
			if err := h.roomUsecase.Leave(ctx, conn.roomID, conn.clientID); err != nil {
				return fmt.Errorf("leave previous room: %w", err)
			}
			conn.roomID = ""
		}

		result, err := h.roomUsecase.Join(ctx, ev.RoomID, conn.clientID, username)
		if err != nil {
			return err
		}

		conn.roomID = ev.RoomID
		h.wsConnRepo.Write(conn.clientID, events.New("joined", result))
		return nil

	case "leave":
		var ev events.LeaveEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal leave: %w", err)
		}

		if err := h.roomUsecase.Leave(ctx, ev.RoomID, conn.clientID); err != nil {
			return err
		}

		conn.roomID = ""
		h.wsConnRepo.Write(conn.clientID, events.New("left", map[string]bool{"ok": true}))
		return nil

	case "create-transport":
		var ev events.CreateTransportEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal create-transport: %w", err)
		}

		direction, ok := voice.ParseDirection(ev.Direction)
		if !ok {
			return fmt.Errorf("unknown transport direction %q", ev.Direction)
		}

		info, err := h.roomUsecase.CreateTransport(ctx, ev.RoomID, conn.clientID, direction)
		if err != nil {
			return err
		}

		h.wsConnRepo.Write(conn.clientID, events.New("transport-created", info))
		return nil

	case "connect-transport":
		var ev events.ConnectTransportEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal connect-transport: %w", err)
		}

		answer, err := h.roomUsecase.ConnectTransport(ctx, ev.RoomID, conn.clientID, ev.TransportID, ev.DtlsParameters)
		if err != nil {
			return err
		}

		h.wsConnRepo.Write(conn.clientID, events.New("transport-connected", map[string]any{
			"transportId": ev.TransportID,
			"answer":      json.RawMessage(answer),
		}))
		return nil

	case "produce":
		var ev events.ProduceEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal produce: %w", err)
		}

		producerID, err := h.roomUsecase.Produce(ctx, ev.RoomID, conn.clientID, ev.TransportID, ev.Kind, ev.RtpParameters)
		if err != nil {
			return err
		}

		h.wsConnRepo.Write(conn.clientID, events.New("produced", map[string]string{"producerId": producerID}))
		return nil

	case "consume":
		var ev events.ConsumeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal consume: %w", err)
		}

		info, err := h.roomUsecase.Consume(ctx, ev.RoomID, conn.clientID, ev.ProducerID, ev.RtpCapabilities)
		if err != nil {
			return err
		}

		h.wsConnRepo.Write(conn.clientID, events.New("consumed", info))
		return nil

	case "resume-consumer":
		var ev events.ResumeConsumerEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal resume-consumer: %w", err)
		}

		if err := h.roomUsecase.ResumeConsumer(ctx, ev.RoomID, conn.clientID, ev.ConsumerID); err != nil {
			return err
		}

		h.wsConnRepo.Write(conn.clientID, events.New("consumer-resumed", map[string]string{"consumerId": ev.ConsumerID}))
		return nil

	case "set-mute":
		var ev events.SetMuteEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal set-mute: %w", err)
		}

		return h.roomUsecase.SetMute(ctx, ev.RoomID, conn.clientID, ev.Muted)

	case "transfer-host":
		var ev events.TransferHostEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal transfer-host: %w", err)
		}

		return h.roomUsecase.TransferHost(ctx, ev.RoomID, conn.clientID, ev.TargetPeerID)

	case "lock-room", "unlock-room":
		var ev events.LockRoomEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal lock-room: %w", err)
		}

		return h.roomUsecase.SetLocked(ctx, ev.RoomID, conn.clientID, msg.Type == "lock-room")

	case "kick-peer":
		var ev events.KickPeerEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal kick-peer: %w", err)
		}

		_, err := h.roomUsecase.Kick(ctx, ev.RoomID, conn.clientID, ev.TargetPeerID, ev.Ban)
		return err

	case "participants":
		var ev events.ParticipantsEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal participants: %w", err)
		}

		participants, locked, err := h.roomUsecase.Participants(ctx, ev.RoomID)
		if err != nil {
			return err
		}

		h.wsConnRepo.Write(conn.clientID, events.New("participants", events.ParticipantListEvent{
			Participants: participants,
			Locked:       locked,
		}))
		return nil

	default:
		h.wsConnRepo.Write(conn.clientID, events.New("error", events.ErrorEvent{
			Code:    "unknown-type",
			Message: fmt.Sprintf("unknown message type %q", msg.Type),
		}))
		return nil
	}
}

// replyError turns an operation outcome into a directed error reply. The
// connection stays open: only auth failure and kicks are fatal.
func (h *WebSocketHandler) replyError(clientID string, err error) {
	code := voice.ErrorCode(err)

	message := err.Error()
	if code == "internal-error" {
		slog.Error("room operation failed", slog.String(constant.ClientID, clientID), slog.Any(constant.Error, err))
		message = "internal error"
	}

	h.wsConnRepo.Write(clientID, events.New("error", events.ErrorEvent{
		Code:    code,
		Message: message,
	}))
}

func (h *WebSocketHandler) handleWebsocketError(clientID string, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("peer disconnected", slog.String(constant.ClientID, clientID))
		default:
			slog.Warn("websocket closed",
				slog.String(constant.ClientID, clientID),
				slog.Int("code", closeErr.Code),
			)
		}
		return
	}

	slog.Error("websocket read", slog.String(constant.ClientID, clientID), slog.Any(constant.Error, err))
}
