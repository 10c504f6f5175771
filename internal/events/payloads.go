package events

import (
	"time"

	"github.com/google/uuid"
)

type SeenPayload struct {
	MessageID string    `json:"message_id,omitempty"`
	UserID    uuid.UUID `json:"user_id"`
	SeenAt    time.Time `json:"seen_at"`
	// Count is set when a whole conversation was marked seen at once.
	Count int64 `json:"count,omitempty"`
}

type ReactionPayload struct {
	MessageID string    `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Removed   bool      `json:"removed,omitempty"`
}

type PinPayload struct {
	MessageID *string   `json:"message_id"`
	PinnedBy  uuid.UUID `json:"pinned_by"`
}

type DeletedPayload struct {
	MessageID string    `json:"message_id"`
	DeletedBy uuid.UUID `json:"deleted_by"`
}

type TypingPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}

type ReactionPulsePayload struct {
	UserID    uuid.UUID `json:"user_id"`
	MessageID string    `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

// AckPayload answers a client frame.
type AckPayload struct {
	Type    string `json:"type"`
	RoomKey string `json:"room_key,omitempty"`
}

type ErrorPayload struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}
