package commands

import (
	"errors"
	"fmt"
	"strings"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"

	"github.com/google/uuid"
)

const (
	TypeSendMessage          = "message.send"
	TypeMarkSeen             = "message.seen"
	TypeMarkConversationSeen = "conversation.seen"
	TypeAddReaction          = "message.react"
	TypeRemoveReaction       = "message.unreact"
	TypeSetPin               = "conversation.pin"
	TypeRecallMessage        = "message.recall"
	TypeDeleteForMe          = "message.delete_for_me"
)

const (
	MaxContentLength = 4000
	MaxAttachments   = 10
	MaxTempIDLength  = 128
	MaxEmojiLength   = 32
)

var (
	ErrMissingActor     = errors.New("user_id is required")
	ErrMissingMessageID = errors.New("message_id is required")
	ErrMissingEmoji     = errors.New("emoji is required")
)

// SendMessageCommand is a client submission. TempID correlates the durable
// message with the optimistic copy the client already rendered.
type SendMessageCommand struct {
	SenderID    uuid.UUID
	GroupID     uuid.NullUUID
	ReceiverID  uuid.NullUUID
	Content     string
	Type        message.Type
	Attachments []message.Attachment
	ReplyTo     string
	TempID      string
}

func (SendMessageCommand) CommandType() string {
	return TypeSendMessage
}

func (c SendMessageCommand) Target() room.Target {
	return room.Target{GroupID: c.GroupID, ReceiverID: c.ReceiverID}
}

func (c SendMessageCommand) Validate() error {
	if c.SenderID == uuid.Nil {
		return ErrMissingActor
	}
	if err := c.Target().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Content) == "" && len(c.Attachments) == 0 {
		return message.ErrEmptyMessage
	}
	if len(c.Content) > MaxContentLength {
		return fmt.Errorf("content exceeds %d bytes", MaxContentLength)
	}
	if len(c.Attachments) > MaxAttachments {
		return fmt.Errorf("at most %d attachments per message", MaxAttachments)
	}
	for _, a := range c.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return errors.New("attachment url is required")
		}
	}
	if c.Type != "" && !c.Type.Valid() {
		return message.ErrUnknownType
	}
	if len(c.TempID) > MaxTempIDLength {
		return fmt.Errorf("temp_id exceeds %d bytes", MaxTempIDLength)
	}
	return nil
}

// IdempotencyKey is the sender-scoped retry token; empty means retries are not deduplicated.
func (c SendMessageCommand) IdempotencyKey() string {
	return c.TempID
}

// Message builds the draft handed to the store.
func (c SendMessageCommand) Message() *message.Message {
	return &message.Message{
		SenderID:     c.SenderID,
		GroupID:      c.GroupID,
		ReceiverID:   c.ReceiverID,
		Content:      c.Content,
		Type:         c.Type,
		Attachments:  append([]message.Attachment(nil), c.Attachments...),
		ReplyTo:      c.ReplyTo,
		ClientTempID: c.TempID,
	}
}

type MarkSeenCommand struct {
	UserID    uuid.UUID
	MessageID string
}

func (MarkSeenCommand) CommandType() string {
	return TypeMarkSeen
}

func (c MarkSeenCommand) Validate() error {
	return requireActorAndMessage(c.UserID, c.MessageID)
}

type MarkConversationSeenCommand struct {
	UserID          uuid.UUID
	ConversationKey room.Key
}

func (MarkConversationSeenCommand) CommandType() string {
	return TypeMarkConversationSeen
}

func (c MarkConversationSeenCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingActor
	}
	_, err := room.Parse(c.ConversationKey.String())
	return err
}

// ReactCommand adds a reaction, or removes it when Remove is set.
type ReactCommand struct {
	UserID    uuid.UUID
	MessageID string
	Emoji     string
	Remove    bool
}

func (c ReactCommand) CommandType() string {
	if c.Remove {
		return TypeRemoveReaction
	}
	return TypeAddReaction
}

func (c ReactCommand) Validate() error {
	if err := requireActorAndMessage(c.UserID, c.MessageID); err != nil {
		return err
	}
	return validateEmoji(c.Emoji)
}

// SetPinCommand pins MessageID, or clears the pin when it is nil.
type SetPinCommand struct {
	UserID          uuid.UUID
	ConversationKey room.Key
	MessageID       *string
}

func (SetPinCommand) CommandType() string {
	return TypeSetPin
}

func (c SetPinCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingActor
	}
	if _, err := room.Parse(c.ConversationKey.String()); err != nil {
		return err
	}
	if c.MessageID != nil && strings.TrimSpace(*c.MessageID) == "" {
		return ErrMissingMessageID
	}
	return nil
}

type RecallMessageCommand struct {
	UserID    uuid.UUID
	MessageID string
}

func (RecallMessageCommand) CommandType() string {
	return TypeRecallMessage
}

func (c RecallMessageCommand) Validate() error {
	return requireActorAndMessage(c.UserID, c.MessageID)
}

type DeleteForMeCommand struct {
	UserID    uuid.UUID
	MessageID string
}

func (DeleteForMeCommand) CommandType() string {
	return TypeDeleteForMe
}

func (c DeleteForMeCommand) Validate() error {
	return requireActorAndMessage(c.UserID, c.MessageID)
}

func requireActorAndMessage(userID uuid.UUID, messageID string) error {
	if userID == uuid.Nil {
		return ErrMissingActor
	}
	if strings.TrimSpace(messageID) == "" {
		return ErrMissingMessageID
	}
	return nil
}

func validateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return ErrMissingEmoji
	}
	if len(emoji) > MaxEmojiLength {
		return fmt.Errorf("emoji exceeds %d bytes", MaxEmojiLength)
	}
	return nil
}
