package repository

import (
	"testing"
	"time"

	"parley-chat/internal/domain/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 123_000_000, time.UTC)
	c, err := decodeCursor(encodeCursor(message.Message{ID: "abc", CreatedAt: at}))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "abc", c.ID)
	assert.True(t, c.CreatedAt.Equal(at))
}

func TestCursorOrdering(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := &historyCursor{CreatedAt: at, ID: "m5"}

	assert.True(t, c.after(message.Message{ID: "m9", CreatedAt: at.Add(-time.Millisecond)}))
	assert.True(t, c.after(message.Message{ID: "m4", CreatedAt: at}))
	assert.False(t, c.after(message.Message{ID: "m5", CreatedAt: at}))
	assert.False(t, c.after(message.Message{ID: "m6", CreatedAt: at}))
	assert.False(t, c.after(message.Message{ID: "m1", CreatedAt: at.Add(time.Millisecond)}))

	var none *historyCursor
	assert.True(t, none.after(message.Message{}))
}

func TestDecodeEmptyCursor(t *testing.T) {
	c, err := decodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}
