package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parley-chat/internal/domain/message"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Key pattern:
// - idempotency:{sender_id}:{temp_id} - durable message for a client submission

// IdempotencyCache remembers the durable message produced for a (sender, tempId)
// pair so a retried submission returns the original instead of appending twice.
type IdempotencyCache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewIdempotencyCache(client goredis.Cmdable, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

func IdempotencyKey(senderID uuid.UUID, tempID string) string {
	return fmt.Sprintf("idempotency:%s:%s", senderID.String(), tempID)
}

// Lookup returns nil when nothing is remembered for the pair.
func (c *IdempotencyCache) Lookup(ctx context.Context, senderID uuid.UUID, tempID string) (*message.Message, error) {
	data, err := c.client.Get(ctx, IdempotencyKey(senderID, tempID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	var m message.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("idempotency entry corrupt: %w", err)
	}
	return &m, nil
}

func (c *IdempotencyCache) Remember(ctx context.Context, m message.Message) error {
	if m.ClientTempID == "" {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, IdempotencyKey(m.SenderID, m.ClientTempID), data, c.ttl).Err()
}
