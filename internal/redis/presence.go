package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"parley-chat/internal/domain/presence"
	"parley-chat/internal/events"

	goredis "github.com/redis/go-redis/v9"
)

// Redis key prefixes for presence
const (
	presenceConnectionsPrefix = "presence:connections:" // Hash connID -> connected_at
	presenceLastSeenPrefix    = "presence:last_seen:"   // Unix seconds of last disconnect
	presenceOnlineSet         = "presence:online"       // Set of online user IDs
)

// PresenceStore tracks websocket connections per user across nodes.
type PresenceStore struct {
	client    *goredis.Client
	publisher *Publisher
	ttl       time.Duration
}

func NewPresenceStore(client *goredis.Client, publisher *Publisher, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{
		client:    client,
		publisher: publisher,
		ttl:       ttl,
	}
}

// TrackConnection records a live connection and marks the user online.
func (p *PresenceStore) TrackConnection(ctx context.Context, userID, connID string) error {
	now := time.Now().UTC()
	key := presenceConnectionsPrefix + userID

	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, connID, now.Unix())
	pipe.Expire(ctx, key, p.ttl)
	added := pipe.SAdd(ctx, presenceOnlineSet, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if added.Val() == 1 {
		return p.publishPresenceEvent(ctx, userID, true, now)
	}
	return nil
}

// Heartbeat keeps the user's connection hash from expiring.
func (p *PresenceStore) Heartbeat(ctx context.Context, userID string) error {
	return p.client.Expire(ctx, presenceConnectionsPrefix+userID, p.ttl).Err()
}

// RemoveConnection drops a connection; the last one out marks the user offline.
func (p *PresenceStore) RemoveConnection(ctx context.Context, userID, connID string) error {
	key := presenceConnectionsPrefix + userID
	if err := p.client.HDel(ctx, key, connID).Err(); err != nil {
		return err
	}

	count, err := p.client.HLen(ctx, key).Result()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, presenceOnlineSet, userID)
	pipe.Set(ctx, presenceLastSeenPrefix+userID, now.Unix(), 30*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return p.publishPresenceEvent(ctx, userID, false, now)
}

func (p *PresenceStore) GetPresence(ctx context.Context, userID string) (*presence.Status, error) {
	pipe := p.client.Pipeline()
	countCmd := pipe.HLen(ctx, presenceConnectionsPrefix+userID)
	lastSeenCmd := pipe.Get(ctx, presenceLastSeenPrefix+userID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	status := presence.Offline(userID)
	if n := countCmd.Val(); n > 0 {
		status.IsOnline = true
		status.State = presence.StateOnline
		status.Connections = int(n)
	}
	if raw, err := lastSeenCmd.Result(); err == nil {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(secs, 0).UTC()
			status.LastSeen = &t
		}
	}
	return status, nil
}

func (p *PresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	return p.client.SIsMember(ctx, presenceOnlineSet, userID).Result()
}

// GetOnlineCount returns the count of online users
func (p *PresenceStore) GetOnlineCount(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, presenceOnlineSet).Result()
}

func (p *PresenceStore) publishPresenceEvent(ctx context.Context, userID string, isOnline bool, at time.Time) error {
	if p.publisher == nil {
		return nil
	}

	eventType := events.EventPresenceOffline
	state := presence.StateOffline
	if isOnline {
		eventType = events.EventPresenceOnline
		state = presence.StateOnline
	}

	env, err := events.NewEnvelope(eventType, "", presence.Status{
		UserID:   userID,
		IsOnline: isOnline,
		State:    state,
		LastSeen: &at,
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, events.PresenceChannel(userID), data)
}
