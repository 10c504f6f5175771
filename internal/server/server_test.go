package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley-chat/config"
	"parley-chat/internal/commands"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	"parley-chat/internal/domain/social"
	"parley-chat/internal/events"
	"parley-chat/internal/handler"
	"parley-chat/internal/proxy"
	"parley-chat/internal/redis"
	"parley-chat/internal/repository"
	"parley-chat/internal/services"
	"parley-chat/internal/websocket"
	"parley-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	result *redis.RateLimitResult
	err    error
}

func (s stubLimiter) AllowMessage(ctx context.Context, userID string) (*redis.RateLimitResult, error) {
	return s.result, s.err
}

type stack struct {
	srv   *Server
	http  *httptest.Server
	auth  *services.AuthService
	graph *repository.MemorySocialRepository
	hub   *websocket.Hub

	alice, bob, carol, mallory uuid.UUID
	general                    uuid.UUID
}

func newStack(t *testing.T, opts RouteOptions) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{AppMode: TestMode, AppPort: "0", JWTSecret: "test-secret", JWTExpiryMin: 5}
	l := logger.NewNop()

	s := &stack{
		graph:   repository.NewMemorySocialRepository(),
		alice:   uuid.New(),
		bob:     uuid.New(),
		carol:   uuid.New(),
		mallory: uuid.New(),
		general: uuid.New(),
	}
	s.graph.AddMember(s.general, s.alice, social.RoleOwner)
	s.graph.AddMember(s.general, s.bob, social.RoleMember)
	s.graph.Block(s.carol, s.mallory)

	s.hub = websocket.NewHub(nil, nil)
	access := proxy.NewAccessControl(s.graph)
	delivery := services.NewDeliveryService(repository.NewMemoryMessageRepository(), access, s.hub)
	signals := services.NewSignalService(access, s.hub, nil)
	bus := commands.NewBus(proxy.NewCommandGuard(access))
	delivery.RegisterHandlers(bus)
	signals.RegisterHandlers(bus)
	s.auth = services.NewAuthService(cfg)

	s.srv = New(cfg, l)
	s.srv.SetupRoutes(&Handlers{
		Messages:  handler.NewMessageHandler(bus, delivery),
		Presence:  handler.NewPresenceHandler(s.hub),
		WebSocket: websocket.NewHandler(s.auth, s.hub, websocket.NewRoomAuthorizer(access), bus, websocket.ClientOptions{SignalsPerSecond: 100}, nil, nil),
	}, s.auth, opts)

	s.http = httptest.NewServer(s.srv.Engine())
	t.Cleanup(s.http.Close)
	return s
}

func (s *stack) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, _, err := s.auth.IssueAccessToken(userID, uuid.New())
	require.NoError(t, err)
	return tok
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (s *stack) do(t *testing.T, method, path string, userID uuid.UUID, body interface{}) (*http.Response, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *stack) dial(t *testing.T, userID uuid.UUID) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/v1/ws?token=" + s.token(t, userID)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *gorillaws.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// expectQuiet asserts nothing arrives on conn within wait. The connection is
// unusable afterwards.
func expectQuiet(t *testing.T, conn *gorillaws.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	var env events.Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "unexpected %s frame", env.EventType)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "want read timeout, got %v", err)
}

func join(t *testing.T, conn *gorillaws.Conn, key room.Key) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(websocket.ClientFrame{Type: websocket.FrameJoin, RoomKey: key.String()}))
	ack := readEnvelope(t, conn)
	require.Equal(t, events.EventAck, ack.EventType)
	require.Equal(t, key.String(), ack.RoomKey)
}

func TestPing(t *testing.T) {
	s := newStack(t, RouteOptions{})
	resp, body := s.do(t, http.MethodGet, "/ping", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHealthReportsFailingChecks(t *testing.T) {
	s := newStack(t, RouteOptions{})
	s.srv.AddHealthCheck("mongo", func(ctx context.Context) error { return nil })
	resp, _ := s.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.srv.AddHealthCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	resp, body := s.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "UNHEALTHY", body.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "parley_test_total", Help: "t"}))
	s := newStack(t, RouteOptions{Gatherer: reg})

	resp, err := http.Get(s.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendRequiresAuth(t *testing.T) {
	s := newStack(t, RouteOptions{})
	resp, body := s.do(t, http.MethodPost, "/v1/messages", uuid.Nil, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body.Code)
}

func TestSendAndReadBack(t *testing.T) {
	s := newStack(t, RouteOptions{})

	resp, body := s.do(t, http.MethodPost, "/v1/messages", s.alice, map[string]string{
		"group_id": s.general.String(),
		"content":  "Standup at 10",
		"temp_id":  "tmp-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body.Error)
	var sent struct {
		Message message.Message `json:"message"`
		TempID  string          `json:"temp_id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &sent))
	assert.Equal(t, "tmp-1", sent.TempID)
	assert.NotEmpty(t, sent.Message.ID)

	key := room.Group(s.general)
	resp, body = s.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%s/messages?limit=10", key), s.bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page message.Page
	require.NoError(t, json.Unmarshal(body.Data, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, sent.Message.ID, page.Messages[0].ID)

	resp, _ = s.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%s/search?q=standup", key), s.bob, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = s.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%s/search", key), s.bob, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", body.Code)

	resp, _ = s.do(t, http.MethodPost, "/v1/messages/"+sent.Message.ID+"/seen", s.bob, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/v1/messages/"+sent.Message.ID+"/reactions", s.bob, map[string]string{"emoji": "👍"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPut, fmt.Sprintf("/v1/conversations/%s/pin", key), s.alice, map[string]string{"message_id": sent.Message.ID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = s.do(t, http.MethodPut, fmt.Sprintf("/v1/conversations/%s/pin", key), s.bob, map[string]string{"message_id": sent.Message.ID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body.Code)

	resp, body = s.do(t, http.MethodPost, "/v1/messages/"+sent.Message.ID+"/recall", s.bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/v1/messages/"+sent.Message.ID+"/recall", s.alice, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendErrorsMapToStatus(t *testing.T) {
	s := newStack(t, RouteOptions{})

	resp, body := s.do(t, http.MethodPost, "/v1/messages", s.mallory, map[string]string{"receiver_id": s.carol.String(), "content": "hi"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body.Code)

	resp, body = s.do(t, http.MethodPost, "/v1/messages", s.alice, map[string]string{"receiver_id": s.bob.String()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", body.Code)

	resp, _ = s.do(t, http.MethodPost, "/v1/messages", s.alice, map[string]string{"receiver_id": "not-a-uuid", "content": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/v1/messages/nope/seen", s.alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Code)

	resp, _ = s.do(t, http.MethodGet, "/v1/conversations/garbage/messages", s.alice, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitMiddleware(t *testing.T) {
	blocked := newStack(t, RouteOptions{MessageLimiter: stubLimiter{result: &redis.RateLimitResult{Allowed: false, Limit: 60, ResetIn: 30 * time.Second}}})
	resp, body := blocked.do(t, http.MethodPost, "/v1/messages", blocked.alice, map[string]string{"receiver_id": blocked.bob.String(), "content": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body.Code)
	assert.Equal(t, "60", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", resp.Header.Get("X-RateLimit-Reset"))

	outage := newStack(t, RouteOptions{MessageLimiter: stubLimiter{err: errors.New("redis down")}})
	resp, _ = outage.do(t, http.MethodPost, "/v1/messages", outage.alice, map[string]string{"receiver_id": outage.bob.String(), "content": "hi"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	s := newStack(t, RouteOptions{})
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/v1/ws"
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketDeliversToRoomSubscribers(t *testing.T) {
	s := newStack(t, RouteOptions{})
	key := room.Group(s.general)

	aliceTab1 := s.dial(t, s.alice)
	aliceTab2 := s.dial(t, s.alice)
	bob := s.dial(t, s.bob)
	for _, conn := range []*gorillaws.Conn{aliceTab1, aliceTab2, bob} {
		join(t, conn, key)
	}

	resp, _ := s.do(t, http.MethodPost, "/v1/messages", s.alice, map[string]string{"group_id": s.general.String(), "content": "hello", "temp_id": "t-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, conn := range []*gorillaws.Conn{aliceTab1, aliceTab2, bob} {
		env := readEnvelope(t, conn)
		assert.Equal(t, events.EventMessageNew, env.EventType)
		assert.Equal(t, key.String(), env.RoomKey)
		var m message.Message
		require.NoError(t, env.Decode(&m))
		assert.Equal(t, "hello", m.Content)
		assert.Equal(t, "t-1", m.ClientTempID)
	}

	for _, conn := range []*gorillaws.Conn{aliceTab1, aliceTab2, bob} {
		expectQuiet(t, conn, 200*time.Millisecond)
	}
}

func TestWebSocketTypingIsNotEchoed(t *testing.T) {
	s := newStack(t, RouteOptions{})
	key := room.Direct(s.alice, s.bob)

	alice := s.dial(t, s.alice)
	bob := s.dial(t, s.bob)
	join(t, alice, key)
	join(t, bob, key)

	require.NoError(t, alice.WriteJSON(websocket.ClientFrame{Type: websocket.FrameTyping, RoomKey: key.String(), IsTyping: true}))
	typing := readEnvelope(t, bob)
	assert.Equal(t, events.EventTyping, typing.EventType)
	var payload events.TypingPayload
	require.NoError(t, typing.Decode(&payload))
	assert.Equal(t, s.alice, payload.UserID)
	assert.True(t, payload.IsTyping)

	resp, _ := s.do(t, http.MethodPost, "/v1/messages", s.bob, map[string]string{"receiver_id": s.alice.String(), "content": "done typing?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, events.EventMessageNew, readEnvelope(t, alice).EventType, "alice never sees her own typing signal")
}

func TestWebSocketFrameErrors(t *testing.T) {
	s := newStack(t, RouteOptions{})
	mallory := s.dial(t, s.mallory)

	require.NoError(t, mallory.WriteJSON(websocket.ClientFrame{Type: websocket.FrameJoin, RoomKey: room.Group(s.general).String()}))
	env := readEnvelope(t, mallory)
	assert.Equal(t, events.EventError, env.EventType)
	var errPayload events.ErrorPayload
	require.NoError(t, env.Decode(&errPayload))
	assert.Equal(t, "FORBIDDEN", errPayload.Code)

	require.NoError(t, mallory.WriteJSON(websocket.ClientFrame{Type: websocket.FrameTyping, RoomKey: room.Group(s.general).String()}))
	env = readEnvelope(t, mallory)
	assert.Equal(t, events.EventError, env.EventType)

	require.NoError(t, mallory.WriteMessage(gorillaws.TextMessage, []byte("{not json")))
	env = readEnvelope(t, mallory)
	require.NoError(t, env.Decode(&errPayload))
	assert.Equal(t, "INVALID_REQUEST", errPayload.Code)

	require.NoError(t, mallory.WriteJSON(websocket.ClientFrame{Type: "dance"}))
	env = readEnvelope(t, mallory)
	assert.Equal(t, events.EventError, env.EventType)
}

func TestPresenceFollowsConnections(t *testing.T) {
	s := newStack(t, RouteOptions{})
	conn := s.dial(t, s.bob)
	join(t, conn, room.Group(s.general))

	resp, body := s.do(t, http.MethodGet, "/v1/presence/"+s.bob.String(), s.alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		IsOnline bool `json:"is_online"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &status))
	assert.True(t, status.IsOnline)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	resp, _ = s.do(t, http.MethodGet, "/v1/presence/not-a-uuid", s.alice, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
