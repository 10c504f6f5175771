package message

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSeenIsIdempotent(t *testing.T) {
	var m Message
	u := uuid.New()

	assert.True(t, m.MarkSeen(u))
	assert.False(t, m.MarkSeen(u))
	assert.Equal(t, []uuid.UUID{u}, m.SeenBy)
	assert.True(t, m.HasSeen(u))
}

func TestReactionsAreASetPerUserAndEmoji(t *testing.T) {
	var m Message
	a, b := uuid.New(), uuid.New()

	m.SetReaction(a, "👍")
	m.SetReaction(a, "👍")
	m.SetReaction(a, "🎉")
	m.SetReaction(b, "👍")
	assert.Len(t, m.Reactions, 3)

	m.RemoveReaction(a, "👍")
	assert.ElementsMatch(t, []Reaction{{UserID: a, Emoji: "🎉"}, {UserID: b, Emoji: "👍"}}, m.Reactions)

	m.RemoveReaction(a, "❤️")
	assert.Len(t, m.Reactions, 2)
}

func TestVisibility(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	m := Message{}

	m.HideFor(a)
	m.HideFor(a)
	assert.Len(t, m.DeletedFor, 1)
	assert.False(t, m.VisibleTo(a))
	assert.True(t, m.VisibleTo(b))

	m.IsDeleted = true
	assert.False(t, m.VisibleTo(b))
}

func TestValidateAndNormalize(t *testing.T) {
	sender, receiver := uuid.New(), uuid.New()

	empty := Message{SenderID: sender, ReceiverID: uuid.NullUUID{UUID: receiver, Valid: true}}
	assert.ErrorIs(t, empty.Validate(), ErrEmptyMessage)

	noSender := Message{ReceiverID: uuid.NullUUID{UUID: receiver, Valid: true}, Content: "hi"}
	assert.ErrorIs(t, noSender.Validate(), ErrNoSender)

	badType := Message{SenderID: sender, ReceiverID: uuid.NullUUID{UUID: receiver, Valid: true}, Content: "hi", Type: "gif"}
	assert.ErrorIs(t, badType.Validate(), ErrUnknownType)

	withImage := Message{
		SenderID:    sender,
		ReceiverID:  uuid.NullUUID{UUID: receiver, Valid: true},
		Attachments: []Attachment{{URL: "https://cdn/x.png", MimeType: "image/png"}},
	}
	require.NoError(t, withImage.Validate())
	require.NoError(t, withImage.Normalize())
	assert.Equal(t, TypeImage, withImage.Type)
	assert.NotEmpty(t, withImage.ConversationKey)
	assert.NotNil(t, withImage.SeenBy)
	assert.NotNil(t, withImage.Reactions)
}

func TestInferType(t *testing.T) {
	tests := []struct {
		mime string
		want Type
	}{
		{"image/jpeg", TypeImage},
		{"VIDEO/MP4", TypeVideo},
		{"audio/ogg", TypeAudio},
		{"application/pdf", TypeFile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferType([]Attachment{{MimeType: tt.mime}}), tt.mime)
	}
	assert.Equal(t, TypeText, InferType(nil))
}

func TestCloneIsDeep(t *testing.T) {
	u := uuid.New()
	m := Message{SeenBy: []uuid.UUID{u}, Reactions: []Reaction{{UserID: u, Emoji: "x"}}}
	cp := m.Clone()
	cp.SeenBy[0] = uuid.New()
	cp.Reactions[0].Emoji = "y"
	assert.Equal(t, u, m.SeenBy[0])
	assert.Equal(t, "x", m.Reactions[0].Emoji)
}
