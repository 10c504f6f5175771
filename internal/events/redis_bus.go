package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// BusFrame is what travels over a room channel.
type BusFrame struct {
	Except   string          `json:"except,omitempty"`
	Envelope json.RawMessage `json:"envelope"`
}

// RedisBus publishes room envelopes to Redis so every node's bridge can fan
// them out locally. Redis keeps per-channel publish order, and one room maps
// to one channel, so subscribers on every node see a room's events in publish order.
type RedisBus struct {
	publisher Publisher
}

func NewRedisBus(publisher Publisher) *RedisBus {
	return &RedisBus{publisher: publisher}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope, exceptConn string) (DeliveryReport, error) {
	report := DeliveryReport{RoomKey: env.RoomKey}
	if env.RoomKey == "" {
		return report, fmt.Errorf("envelope %s has no room", env.EventType)
	}

	data, err := env.Encode()
	if err != nil {
		return report, fmt.Errorf("failed to marshal event: %w", err)
	}
	frame, err := json.Marshal(BusFrame{Except: exceptConn, Envelope: data})
	if err != nil {
		return report, fmt.Errorf("failed to marshal bus frame: %w", err)
	}

	if err := b.publisher.Publish(ctx, RoomChannel(env.RoomKey), frame); err != nil {
		return report, fmt.Errorf("failed to publish to %s: %w", RoomChannel(env.RoomKey), err)
	}
	return report, nil
}

// DecodeBusFrame is the inverse of the framing done by Publish.
func DecodeBusFrame(payload []byte) (BusFrame, error) {
	var frame BusFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return BusFrame{}, err
	}
	if len(frame.Envelope) == 0 {
		return BusFrame{}, fmt.Errorf("bus frame has no envelope")
	}
	return frame, nil
}
