package message

import (
	"time"

	"parley-chat/internal/domain/room"

	"github.com/google/uuid"
)

// Pin is the single active pinned message of a conversation.
type Pin struct {
	ConversationKey room.Key  `json:"conversation_key"`
	MessageID       string    `json:"message_id"`
	PinnedBy        uuid.UUID `json:"pinned_by"`
	PinnedAt        time.Time `json:"pinned_at"`
}
