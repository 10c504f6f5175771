package websocket

import (
	"parley-chat/internal/events"
)

// Client frame types.
const (
	FrameJoin          = "join"
	FrameLeave         = "leave"
	FrameTyping        = "typing"
	FrameReactionPulse = "reaction_pulse"
)

// ClientFrame is the single inbound frame shape; Type selects which fields matter.
type ClientFrame struct {
	Type      string `json:"type"`
	RoomKey   string `json:"room_key"`
	IsTyping  bool   `json:"is_typing,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

func ackFrame(frameType, roomKey string) ([]byte, error) {
	env, err := events.NewEnvelope(events.EventAck, roomKey, events.AckPayload{Type: frameType, RoomKey: roomKey})
	if err != nil {
		return nil, err
	}
	return env.Encode()
}

func errorFrame(frameType, roomKey, message, code string) ([]byte, error) {
	env, err := events.NewEnvelope(events.EventError, roomKey, events.ErrorPayload{
		Type:    frameType,
		Message: message,
		Code:    code,
	})
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
