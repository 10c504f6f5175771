package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"parley-chat/internal/domain/presence"
	"parley-chat/internal/events"
	"parley-chat/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrClientClosed  = errors.New("websocket client is closed")
	ErrEmptyRoomKey  = errors.New("room key is required")
	ErrNotSubscribed = errors.New("client has not joined the room")
)

// Hub is the presence/room registry of this node. Every operation runs
// synchronously under mu, so a Join that loses the race against Unregister
// fails instead of leaving a stale subscriber behind.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client
	clients map[string]*Client

	// rooms maps room key to the set of clients subscribed to it
	rooms map[string]map[*Client]struct{}

	// lastSeen maps user ID to the time their last connection closed
	lastSeen map[string]time.Time

	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewHub(m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
		lastSeen: make(map[string]time.Time),
		metrics:  m,
		logger:   logger,
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	client.registered = true
	h.clients[client.ID] = client
	h.metrics.SetConnections(len(h.clients))
}

// Unregister removes the client from every room and closes its send queue.
// Calling it more than once is harmless.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	client.closed = true

	for roomKey := range client.rooms {
		h.removeFromRoom(client, roomKey)
	}
	delete(h.clients, client.ID)

	if !h.userConnectedLocked(client.UserID.String()) {
		h.lastSeen[client.UserID.String()] = time.Now().UTC()
	}

	close(client.Send)
	h.metrics.SetConnections(len(h.clients))
	h.metrics.SetRooms(len(h.rooms))
}

// Join subscribes client to roomKey. Joining twice is a no-op.
func (h *Hub) Join(client *Client, roomKey string) error {
	if roomKey == "" {
		return ErrEmptyRoomKey
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed || !client.registered {
		return ErrClientClosed
	}

	if _, ok := h.rooms[roomKey]; !ok {
		h.rooms[roomKey] = make(map[*Client]struct{})
	}
	h.rooms[roomKey][client] = struct{}{}
	client.rooms[roomKey] = struct{}{}
	h.metrics.SetRooms(len(h.rooms))
	return nil
}

// Leave unsubscribes client from roomKey. Leaving a room never joined is a no-op.
func (h *Hub) Leave(client *Client, roomKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(client, roomKey)
	h.metrics.SetRooms(len(h.rooms))
}

// InRoom reports whether client is currently subscribed to roomKey.
func (h *Hub) InRoom(client *Client, roomKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := client.rooms[roomKey]
	return ok
}

// SubscribersOf returns the connection ids subscribed to roomKey, sorted.
func (h *Hub) SubscribersOf(roomKey string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[roomKey]))
	for c := range h.rooms[roomKey] {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast enqueues payload to every subscriber of roomKey except exceptConn.
// It never blocks: a full queue counts as a drop.
func (h *Hub) Broadcast(roomKey string, payload []byte, exceptConn string) events.DeliveryReport {
	report := events.DeliveryReport{RoomKey: roomKey}

	h.mu.RLock()
	for c := range h.rooms[roomKey] {
		if c.ID == exceptConn {
			continue
		}
		report.Attempted++
		if c.enqueue(payload) {
			report.Delivered++
		} else {
			report.Dropped = append(report.Dropped, c.ID)
		}
	}
	h.mu.RUnlock()

	return report
}

// Publish implements events.Broadcaster for single-node deployments.
func (h *Hub) Publish(ctx context.Context, env events.Envelope, exceptConn string) (events.DeliveryReport, error) {
	data, err := env.Encode()
	if err != nil {
		return events.DeliveryReport{RoomKey: env.RoomKey}, err
	}
	report := h.Broadcast(env.RoomKey, data, exceptConn)
	h.metrics.Fanout(report.Delivered)
	if report.Partial() {
		h.metrics.Dropped(env.EventType, len(report.Dropped))
		h.logger.Warn("room delivery partially failed",
			zap.String("room_key", env.RoomKey),
			zap.String("event_type", env.EventType),
			zap.Int("attempted", report.Attempted),
			zap.Strings("dropped", report.Dropped),
		)
	}
	return report, nil
}

// SendTo writes a reply to a single client.
func (h *Hub) SendTo(client *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return false
	}
	return client.enqueue(payload)
}

// GetPresence answers from local connections only.
func (h *Hub) GetPresence(ctx context.Context, userID string) (*presence.Status, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status := presence.Offline(userID)
	for _, client := range h.clients {
		if client.UserID.String() == userID {
			status.Connections++
		}
	}
	if status.Connections > 0 {
		status.IsOnline = true
		status.State = presence.StateOnline
	}
	if t, ok := h.lastSeen[userID]; ok {
		status.LastSeen = &t
	}
	return status, nil
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetRoomCount returns the number of rooms with at least one subscriber
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) removeFromRoom(client *Client, roomKey string) {
	if subscribers, ok := h.rooms[roomKey]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.rooms, roomKey)
		}
	}
	delete(client.rooms, roomKey)
}

func (h *Hub) userConnectedLocked(userID string) bool {
	for _, c := range h.clients {
		if c.UserID.String() == userID {
			return true
		}
	}
	return false
}
