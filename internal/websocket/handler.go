package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"parley-chat/internal/commands"
	"parley-chat/internal/domain/room"
	"parley-chat/internal/metrics"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"
	parley_errors "parley-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PresenceTracker records live connections across nodes.
type PresenceTracker interface {
	TrackConnection(ctx context.Context, userID, connID string) error
	Heartbeat(ctx context.Context, userID string) error
	RemoveConnection(ctx context.Context, userID, connID string) error
}

type Handler struct {
	auth     *services.AuthService
	hub      *Hub
	rooms    *RoomAuthorizer
	bus      *commands.Bus
	presence PresenceTracker
	opts     ClientOptions
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewHandler(auth *services.AuthService, hub *Hub, rooms *RoomAuthorizer, bus *commands.Bus, opts ClientOptions, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:    auth,
		hub:     hub,
		rooms:   rooms,
		bus:     bus,
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}

// WithPresence enables cross-node presence tracking.
func (h *Handler) WithPresence(tracker PresenceTracker) *Handler {
	h.presence = tracker
	return h
}

// Connect upgrades the request and serves the connection until it closes.
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.ParseAccessToken(extractToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	client := NewClient(conn, userID, h.opts)
	log := h.logger.With(zap.String("user_id", userID.String()), zap.String("conn_id", client.ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	h.trackPresence(ctx, client, log)
	go client.WriteLoop(ctx)
	log.Debug("websocket connected")

	err = client.ReadLoop(func(data []byte) {
		h.dispatch(ctx, client, data, log)
	})
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Debug("websocket read ended", zap.Error(err))
	}

	h.hub.Unregister(client)
	h.untrackPresence(client, log)
	log.Debug("websocket disconnected")
}

func (h *Handler) dispatch(ctx context.Context, client *Client, data []byte, log *zap.Logger) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.replyError(client, "", "", parley_errors.ErrValidation, "malformed frame")
		return
	}

	switch frame.Type {
	case FrameJoin:
		key, err := h.rooms.Authorize(ctx, client.UserID, frame.RoomKey)
		if err != nil {
			h.replyError(client, frame.Type, frame.RoomKey, err, "")
			return
		}
		if err := h.hub.Join(client, key.String()); err != nil {
			return
		}
		h.replyAck(client, frame.Type, key.String())

	case FrameLeave:
		key, err := room.Parse(frame.RoomKey)
		if err != nil {
			h.replyError(client, frame.Type, frame.RoomKey, parley_errors.ErrValidation, err.Error())
			return
		}
		h.hub.Leave(client, key.String())
		h.replyAck(client, frame.Type, key.String())

	case FrameTyping, FrameReactionPulse:
		key, err := room.Parse(frame.RoomKey)
		if err != nil || !h.hub.InRoom(client, key.String()) {
			h.replyError(client, frame.Type, frame.RoomKey, parley_errors.ErrForbidden, ErrNotSubscribed.Error())
			return
		}
		frame.RoomKey = key.String()
		if !client.AllowSignal() {
			h.metrics.SignalThrottled()
			return
		}
		if _, err := h.bus.Execute(ctx, signalCommand(client, frame)); err != nil {
			log.Debug("signal rejected", zap.String("type", frame.Type), zap.Error(err))
			h.replyError(client, frame.Type, frame.RoomKey, err, "")
		}

	default:
		h.replyError(client, frame.Type, frame.RoomKey, parley_errors.ErrValidation, "unknown frame type")
	}
}

func signalCommand(client *Client, frame ClientFrame) commands.Command {
	if frame.Type == FrameTyping {
		return commands.TypingCommand{
			UserID:     client.UserID,
			RoomKey:    room.Key(frame.RoomKey),
			IsTyping:   frame.IsTyping,
			ExceptConn: client.ID,
		}
	}
	return commands.ReactionPulseCommand{
		UserID:     client.UserID,
		RoomKey:    room.Key(frame.RoomKey),
		MessageID:  frame.MessageID,
		Emoji:      frame.Emoji,
		ExceptConn: client.ID,
	}
}

func (h *Handler) replyAck(client *Client, frameType, roomKey string) {
	data, err := ackFrame(frameType, roomKey)
	if err != nil {
		return
	}
	h.hub.SendTo(client, data)
}

func (h *Handler) replyError(client *Client, frameType, roomKey string, err error, message string) {
	if message == "" {
		message = err.Error()
	}
	data, ferr := errorFrame(frameType, roomKey, message, services.ErrorCode(err))
	if ferr != nil {
		return
	}
	h.hub.SendTo(client, data)
}

func (h *Handler) trackPresence(ctx context.Context, client *Client, log *zap.Logger) {
	if h.presence == nil {
		return
	}
	userID := client.UserID.String()
	if err := h.presence.TrackConnection(ctx, userID, client.ID); err != nil {
		log.Warn("failed to track presence", zap.Error(err))
	}
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.presence.Heartbeat(ctx, userID); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("presence heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
}

func (h *Handler) untrackPresence(client *Client, log *zap.Logger) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.RemoveConnection(ctx, client.UserID.String(), client.ID); err != nil {
		log.Warn("failed to remove presence", zap.Error(err))
	}
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}
