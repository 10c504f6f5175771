package reconcile

import (
	"errors"
	"testing"
	"time"

	"parley-chat/internal/domain/message"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func durable(id, tempID string, sender uuid.UUID, content string) message.Message {
	return message.Message{ID: id, ClientTempID: tempID, SenderID: sender, Content: content, CreatedAt: t0}
}

func TestAckThenBroadcastRendersOnce(t *testing.T) {
	me := uuid.New()
	tl := NewTimeline(0)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "hi"}, t0))

	require.NoError(t, tl.Confirm("tmp-1", durable("m1", "tmp-1", me, "hi")))
	assert.False(t, tl.ApplyBroadcast(durable("m1", "tmp-1", me, "hi")))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Empty(t, tl.Pending())
}

func TestBroadcastBeforeAckConfirmsInPlace(t *testing.T) {
	me := uuid.New()
	tl := NewTimeline(0)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "first"}, t0))
	require.NoError(t, tl.Submit("tmp-2", message.Message{SenderID: me, Content: "second"}, t0))

	assert.True(t, tl.ApplyBroadcast(durable("m1", "tmp-1", me, "first")))
	require.NoError(t, tl.Confirm("tmp-1", durable("m1", "tmp-1", me, "first")))

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Equal(t, Optimistic, entries[1].State)
	assert.Equal(t, []string{"tmp-2"}, tl.Pending())
}

func TestForeignTempIDIsNotHijacked(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	tl := NewTimeline(0)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "mine"}, t0))

	assert.True(t, tl.ApplyBroadcast(durable("m9", "tmp-1", other, "theirs")))
	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Optimistic, entries[0].State)
	assert.Equal(t, "m9", entries[1].Message.ID)
}

func TestTimeoutThenRetry(t *testing.T) {
	me := uuid.New()
	tl := NewTimeline(5 * time.Second)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "slow"}, t0))
	require.NoError(t, tl.Submit("tmp-2", message.Message{SenderID: me, Content: "fast"}, t0.Add(4*time.Second)))

	assert.Equal(t, []string{"tmp-1"}, tl.Expire(t0.Add(5*time.Second)))
	entries := tl.Entries()
	assert.Equal(t, Failed, entries[0].State)
	assert.ErrorIs(t, entries[0].Err, parley_errors.ErrTimeout)

	_, err := tl.Retry("tmp-2", "", t0)
	assert.ErrorIs(t, err, ErrNotFailed)
	_, err = tl.Retry("tmp-1", "tmp-2", t0)
	assert.ErrorIs(t, err, ErrDuplicateTemp)

	draft, err := tl.Retry("tmp-1", "tmp-1b", t0.Add(6*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "tmp-1b", draft.ClientTempID)
	assert.Equal(t, "slow", draft.Content)

	require.NoError(t, tl.Confirm("tmp-1b", durable("m1", "tmp-1b", me, "slow")))
	entries = tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].Message.ID, "retry keeps the original position")
}

func TestLateAckRevivesFailedEntry(t *testing.T) {
	me := uuid.New()
	tl := NewTimeline(time.Second)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "x"}, t0))
	require.NoError(t, tl.Fail("tmp-1", errors.New("network")))
	require.NoError(t, tl.Fail("tmp-1", errors.New("ignored")))

	require.NoError(t, tl.Confirm("tmp-1", durable("m1", "tmp-1", me, "x")))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.NoError(t, entries[0].Err)
}

func TestConfirmOfAlreadyRenderedMessageDropsOptimisticRow(t *testing.T) {
	me := uuid.New()
	tl := NewTimeline(0)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "x"}, t0))
	assert.True(t, tl.ApplyBroadcast(durable("m1", "", me, "x")))

	require.NoError(t, tl.Confirm("tmp-1", durable("m1", "tmp-1", me, "x")))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].Message.ID)
}

func TestRoomEventsMutateRenderedMessages(t *testing.T) {
	me, peer := uuid.New(), uuid.New()
	tl := NewTimeline(0)
	tl.ApplyBroadcast(durable("m1", "", peer, "hello"))

	assert.True(t, tl.ApplySeen("m1", me))
	assert.True(t, tl.ApplyReaction("m1", me, "👍", false))
	assert.True(t, tl.ApplyReaction("m1", peer, "👍", false))
	assert.True(t, tl.ApplyReaction("m1", peer, "👍", true))
	assert.False(t, tl.ApplySeen("unknown", me))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, []uuid.UUID{me}, entries[0].Message.SeenBy)
	assert.Equal(t, []message.Reaction{{UserID: me, Emoji: "👍"}}, entries[0].Message.Reactions)

	assert.True(t, tl.ApplyDeleted("m1"))
	assert.Empty(t, tl.Entries())
}

func TestSubmitValidation(t *testing.T) {
	tl := NewTimeline(0)
	assert.ErrorIs(t, tl.Submit("", message.Message{}, t0), ErrEmptyTempID)
	require.NoError(t, tl.Submit("a", message.Message{}, t0))
	assert.ErrorIs(t, tl.Submit("a", message.Message{}, t0), ErrDuplicateTemp)
	assert.ErrorIs(t, tl.Confirm("zzz", message.Message{}), ErrUnknownTemp)
	assert.ErrorIs(t, tl.Fail("zzz", nil), ErrUnknownTemp)
	assert.Equal(t, "optimistic", Optimistic.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestReusedTempIDDoesNotRebindConfirmedEntry(t *testing.T) {
	me, viewer := uuid.New(), uuid.New()
	tl := NewTimeline(0)
	require.NoError(t, tl.Submit("tmp-1", message.Message{SenderID: me, Content: "hi"}, t0))
	require.NoError(t, tl.Confirm("tmp-1", durable("m1", "tmp-1", me, "hi")))

	// A second durable copy under the same temp id renders as its own row.
	assert.True(t, tl.ApplyBroadcast(durable("m2", "tmp-1", me, "hi")))
	require.NoError(t, tl.Confirm("tmp-1", durable("m3", "tmp-1", me, "hi")))

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Equal(t, "m2", entries[1].Message.ID)

	assert.True(t, tl.ApplySeen("m1", viewer))
	entries = tl.Entries()
	assert.Equal(t, []uuid.UUID{viewer}, entries[0].Message.SeenBy)
	assert.Empty(t, entries[1].Message.SeenBy)
	assert.False(t, tl.ApplySeen("m3", viewer))
}
