package message

import (
	"errors"
	"strings"
	"time"

	"parley-chat/internal/domain/room"

	"github.com/google/uuid"
)

// Type is informational; it never gates delivery.
type Type string

const (
	TypeText    Type = "text"
	TypeImage   Type = "image"
	TypeFile    Type = "file"
	TypeVideo   Type = "video"
	TypeAudio   Type = "audio"
	TypeSticker Type = "sticker"
)

var (
	ErrEmptyMessage = errors.New("message must have content or at least one attachment")
	ErrUnknownType  = errors.New("unknown message type")
	ErrNoSender     = errors.New("sender is required")
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeVideo, TypeAudio, TypeSticker:
		return true
	}
	return false
}

// Attachment references an object held by the blob store.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// Reaction is unique per (UserID, Emoji).
type Reaction struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
}

// Message represents a persisted chat message
type Message struct {
	ID              string        `json:"id"`
	SenderID        uuid.UUID     `json:"sender_id"`
	GroupID         uuid.NullUUID `json:"group_id"`
	ReceiverID      uuid.NullUUID `json:"receiver_id"`
	ConversationKey room.Key      `json:"conversation_key"`
	Content         string        `json:"content"`
	Type            Type          `json:"type"`
	Attachments     []Attachment  `json:"attachments"`
	ClientTempID    string        `json:"temp_id,omitempty"`
	ReplyTo         string        `json:"reply_to,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	SeenBy          []uuid.UUID   `json:"seen_by"`
	Reactions       []Reaction    `json:"reactions"`
	IsDeleted       bool          `json:"is_deleted"`
	DeletedFor      []uuid.UUID   `json:"-"`
}

func (m *Message) Target() room.Target {
	return room.Target{GroupID: m.GroupID, ReceiverID: m.ReceiverID}
}

// Validate enforces the append-time invariants: one target, something to show.
func (m *Message) Validate() error {
	if m.SenderID == uuid.Nil {
		return ErrNoSender
	}
	if err := m.Target().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 {
		return ErrEmptyMessage
	}
	if m.Type != "" && !m.Type.Valid() {
		return ErrUnknownType
	}
	return nil
}

// Normalize fills derived fields before the message is appended.
func (m *Message) Normalize() error {
	key, err := room.ForTarget(m.SenderID, m.Target())
	if err != nil {
		return err
	}
	m.ConversationKey = key
	if m.Type == "" {
		m.Type = InferType(m.Attachments)
	}
	if m.SeenBy == nil {
		m.SeenBy = []uuid.UUID{}
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	return nil
}

// InferType picks a type from the first attachment's MIME type.
func InferType(attachments []Attachment) Type {
	if len(attachments) == 0 {
		return TypeText
	}
	mime := strings.ToLower(attachments[0].MimeType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return TypeImage
	case strings.HasPrefix(mime, "video/"):
		return TypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return TypeAudio
	default:
		return TypeFile
	}
}

func (m *Message) HasSeen(userID uuid.UUID) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkSeen adds userID to SeenBy. It returns false when the user was already there.
func (m *Message) MarkSeen(userID uuid.UUID) bool {
	if m.HasSeen(userID) {
		return false
	}
	m.SeenBy = append(m.SeenBy, userID)
	return true
}

// SetReaction drops any existing (user, emoji) entry and appends a fresh one.
func (m *Message) SetReaction(userID uuid.UUID, emoji string) {
	m.RemoveReaction(userID, emoji)
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji})
}

func (m *Message) RemoveReaction(userID uuid.UUID, emoji string) {
	kept := m.Reactions[:0]
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			continue
		}
		kept = append(kept, r)
	}
	m.Reactions = kept
}

// VisibleTo reports whether the message shows up in userID's reads.
func (m *Message) VisibleTo(userID uuid.UUID) bool {
	if m.IsDeleted {
		return false
	}
	for _, id := range m.DeletedFor {
		if id == userID {
			return false
		}
	}
	return true
}

// HideFor soft-deletes the message for a single user.
func (m *Message) HideFor(userID uuid.UUID) {
	for _, id := range m.DeletedFor {
		if id == userID {
			return
		}
	}
	m.DeletedFor = append(m.DeletedFor, userID)
}

// Clone returns a deep copy safe to hand out of a store.
func (m Message) Clone() Message {
	out := m
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.SeenBy = append([]uuid.UUID(nil), m.SeenBy...)
	out.Reactions = append([]Reaction(nil), m.Reactions...)
	out.DeletedFor = append([]uuid.UUID(nil), m.DeletedFor...)
	if out.Attachments == nil {
		out.Attachments = []Attachment{}
	}
	if out.SeenBy == nil {
		out.SeenBy = []uuid.UUID{}
	}
	if out.Reactions == nil {
		out.Reactions = []Reaction{}
	}
	return out
}
