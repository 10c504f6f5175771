package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func direct(sender, receiver uuid.UUID, content string) *message.Message {
	return &message.Message{
		SenderID:   sender,
		ReceiverID: uuid.NullUUID{UUID: receiver, Valid: true},
		Content:    content,
	}
}

func TestAppendAssignsIdentityAndKey(t *testing.T) {
	repo := NewMemoryMessageRepository()
	a, b := uuid.New(), uuid.New()

	m := direct(a, b, "hi")
	id, err := repo.Append(context.Background(), m)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, room.Direct(a, b), m.ConversationKey)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, message.TypeText, m.Type)

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Content)
}

func TestAppendRejectsInvalidMessages(t *testing.T) {
	repo := NewMemoryMessageRepository()
	_, err := repo.Append(context.Background(), direct(uuid.New(), uuid.New(), "   "))
	assert.ErrorIs(t, err, parley_errors.ErrValidation)
}

func TestAppendHonoursCancelledContext(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.Append(ctx, direct(uuid.New(), uuid.New(), "hi"))
	assert.ErrorIs(t, err, parley_errors.ErrPersistence)
}

func TestCreatedAtNeverGoesBackwards(t *testing.T) {
	repo := NewMemoryMessageRepository()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	repo.now = func() time.Time {
		t := clock[i]
		i++
		return t
	}

	a, b := uuid.New(), uuid.New()
	var created []time.Time
	for n := 0; n < 3; n++ {
		m := direct(a, b, fmt.Sprintf("m%d", n))
		_, err := repo.Append(context.Background(), m)
		require.NoError(t, err)
		created = append(created, m.CreatedAt)
	}
	assert.Equal(t, base, created[1])
	assert.True(t, created[2].After(created[1]))
}

func TestMarkSeenAndConversationSeen(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	a, b := uuid.New(), uuid.New()

	m1 := direct(a, b, "one")
	m2 := direct(a, b, "two")
	own := direct(b, a, "mine")
	for _, m := range []*message.Message{m1, m2, own} {
		_, err := repo.Append(ctx, m)
		require.NoError(t, err)
	}

	require.NoError(t, repo.MarkSeen(ctx, m1.ID, b))
	require.NoError(t, repo.MarkSeen(ctx, m1.ID, b))
	got, _ := repo.GetByID(ctx, m1.ID)
	assert.Equal(t, []uuid.UUID{b}, got.SeenBy)

	n, err := repo.MarkConversationSeen(ctx, room.Direct(a, b), b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only m2 was unseen and not sent by b")

	mine, _ := repo.GetByID(ctx, own.ID)
	assert.Empty(t, mine.SeenBy)

	assert.ErrorIs(t, repo.MarkSeen(ctx, "missing", b), parley_errors.ErrNotFound)
}

func TestPinReplacesAndClears(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	a, b := uuid.New(), uuid.New()
	key := room.Direct(a, b)

	pin, err := repo.GetPin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, pin)

	first, second := "m1", "m2"
	require.NoError(t, repo.SetPin(ctx, key, &first, a))
	require.NoError(t, repo.SetPin(ctx, key, &second, b))
	pin, err = repo.GetPin(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, pin)
	assert.Equal(t, "m2", pin.MessageID)
	assert.Equal(t, b, pin.PinnedBy)

	require.NoError(t, repo.SetPin(ctx, key, nil, a))
	pin, err = repo.GetPin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, pin)
}

func TestHistoryPagesNewestFirstAndHidesDeleted(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	a, b := uuid.New(), uuid.New()
	key := room.Direct(a, b)

	var ids []string
	for i := 0; i < 7; i++ {
		m := direct(a, b, fmt.Sprintf("m%d", i))
		_, err := repo.Append(ctx, m)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	require.NoError(t, repo.Recall(ctx, ids[5]))
	require.NoError(t, repo.DeleteFor(ctx, ids[3], b))

	var seen []string
	cursor := ""
	for {
		page, err := repo.ListHistory(ctx, key, b, cursor, 2)
		require.NoError(t, err)
		for _, m := range page.Messages {
			seen = append(seen, m.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{ids[6], ids[4], ids[2], ids[1], ids[0]}, seen)

	page, err := repo.ListHistory(ctx, key, a, "", 50)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 6, "deleted-for-b stays visible to a")
}

func TestCursorIsStableUnderConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	a, b := uuid.New(), uuid.New()
	key := room.Direct(a, b)

	for i := 0; i < 4; i++ {
		_, err := repo.Append(ctx, direct(a, b, fmt.Sprintf("old%d", i)))
		require.NoError(t, err)
	}
	first, err := repo.ListHistory(ctx, key, a, "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, first.NextCursor)

	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, direct(b, a, fmt.Sprintf("new%d", i)))
		require.NoError(t, err)
	}

	second, err := repo.ListHistory(ctx, key, a, first.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, "old1", second.Messages[0].Content)
	assert.Equal(t, "old0", second.Messages[1].Content)
	assert.Empty(t, second.NextCursor)
}

func TestMalformedCursor(t *testing.T) {
	repo := NewMemoryMessageRepository()
	_, err := repo.ListHistory(context.Background(), room.Group(uuid.New()), uuid.New(), "%%%", 10)
	assert.ErrorIs(t, err, parley_errors.ErrValidation)
}

func TestSearchIsCaseInsensitiveAndScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	for _, content := range []string{"Lunch at noon?", "lunch is ready", "dinner"} {
		_, err := repo.Append(ctx, direct(a, b, content))
		require.NoError(t, err)
	}
	_, err := repo.Append(ctx, direct(a, c, "lunch elsewhere"))
	require.NoError(t, err)

	found, err := repo.Search(ctx, room.Direct(a, b), a, "LUNCH", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = repo.Search(ctx, room.Direct(a, b), a, "  ", 10)
	assert.ErrorIs(t, err, parley_errors.ErrValidation)
}

func TestConcurrentReactionsFromDistinctUsers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	group := uuid.New()
	m := &message.Message{SenderID: uuid.New(), GroupID: uuid.NullUUID{UUID: group, Valid: true}, Content: "vote"}
	_, err := repo.Append(ctx, m)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := uuid.New()
			_ = repo.AddReaction(ctx, m.ID, u, "👍")
			_ = repo.MarkSeen(ctx, m.ID, u)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 50)
	assert.Len(t, got.SeenBy, 50)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, clampLimit(0))
	assert.Equal(t, MaxHistoryLimit, clampLimit(10_000))
	assert.Equal(t, 7, clampLimit(7))
}
