package commands

import (
	"errors"

	"parley-chat/internal/domain/room"

	"github.com/google/uuid"
)

const (
	TypeTyping        = "signal.typing"
	TypeReactionPulse = "signal.reaction_pulse"
)

var ErrMissingRoom = errors.New("room_key is required")

// TypingCommand relays a typing indicator. ExceptConn is the originating
// connection, which never receives its own signal back.
type TypingCommand struct {
	UserID     uuid.UUID
	RoomKey    room.Key
	IsTyping   bool
	ExceptConn string
}

func (TypingCommand) CommandType() string {
	return TypeTyping
}

func (c TypingCommand) Validate() error {
	return requireActorAndRoom(c.UserID, c.RoomKey)
}

type ReactionPulseCommand struct {
	UserID     uuid.UUID
	RoomKey    room.Key
	MessageID  string
	Emoji      string
	ExceptConn string
}

func (ReactionPulseCommand) CommandType() string {
	return TypeReactionPulse
}

func (c ReactionPulseCommand) Validate() error {
	if err := requireActorAndRoom(c.UserID, c.RoomKey); err != nil {
		return err
	}
	if c.MessageID == "" {
		return ErrMissingMessageID
	}
	return validateEmoji(c.Emoji)
}

func requireActorAndRoom(userID uuid.UUID, key room.Key) error {
	if userID == uuid.Nil {
		return ErrMissingActor
	}
	if key == "" {
		return ErrMissingRoom
	}
	_, err := room.Parse(key.String())
	return err
}
