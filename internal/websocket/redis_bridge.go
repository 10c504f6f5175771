package websocket

import (
	"context"
	"encoding/json"

	"parley-chat/internal/events"

	"go.uber.org/zap"
)

// RedisBridge feeds room envelopes published by any node into the local Hub.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
	logger     *zap.Logger
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{subscriber: subscriber, hub: hub, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{events.RoomPattern()}, func(channel string, payload []byte) {
		b.forward(ctx, channel, payload)
	})
}

func (b *RedisBridge) forward(ctx context.Context, channel string, payload []byte) {
	roomKey, ok := events.RoomFromChannel(channel)
	if !ok {
		return
	}
	frame, err := events.DecodeBusFrame(payload)
	if err != nil {
		b.logger.Warn("dropping undecodable bus frame", zap.String("channel", channel), zap.Error(err))
		return
	}
	var env events.Envelope
	if err := json.Unmarshal(frame.Envelope, &env); err != nil {
		b.logger.Warn("dropping undecodable envelope", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.RoomKey != roomKey {
		b.logger.Warn("bus frame room mismatch",
			zap.String("channel", channel),
			zap.String("room_key", env.RoomKey),
		)
		return
	}
	if _, err := b.hub.Publish(ctx, env, frame.Except); err != nil {
		b.logger.Error("local fan-out failed", zap.String("room_key", roomKey), zap.Error(err))
	}
}
