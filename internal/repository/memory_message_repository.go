package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryMessageRepository keeps messages in process memory. It backs tests and
// single node development setups (MESSAGE_STORE=memory).
type MemoryMessageRepository struct {
	mu             sync.RWMutex
	messages       map[string]*message.Message
	byConversation map[room.Key][]string
	pins           map[room.Key]message.Pin
	lastCreated    time.Time
	now            func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages:       make(map[string]*message.Message),
		byConversation: make(map[room.Key][]string),
		pins:           make(map[room.Key]message.Pin),
		now:            time.Now,
	}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, m *message.Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	if err := m.Normalize(); err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// created_at never goes backwards, so append order matches (created_at, id) order.
	created := r.now().UTC().Truncate(time.Millisecond)
	if created.Before(r.lastCreated) {
		created = r.lastCreated
	}
	r.lastCreated = created

	m.ID = primitive.NewObjectID().Hex()
	m.CreatedAt = created

	stored := m.Clone()
	r.messages[m.ID] = &stored
	r.byConversation[m.ConversationKey] = append(r.byConversation[m.ConversationKey], m.ID)
	return m.ID, nil
}

func (r *MemoryMessageRepository) GetByID(ctx context.Context, id string) (message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return message.Message{}, parley_errors.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *MemoryMessageRepository) MarkSeen(ctx context.Context, id string, userID uuid.UUID) error {
	return r.mutate(id, func(m *message.Message) {
		m.MarkSeen(userID)
	})
}

func (r *MemoryMessageRepository) MarkConversationSeen(ctx context.Context, key room.Key, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, id := range r.byConversation[key] {
		m := r.messages[id]
		if m.SenderID == userID || !m.VisibleTo(userID) {
			continue
		}
		if m.MarkSeen(userID) {
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryMessageRepository) AddReaction(ctx context.Context, id string, userID uuid.UUID, emoji string) error {
	return r.mutate(id, func(m *message.Message) {
		m.SetReaction(userID, emoji)
	})
}

func (r *MemoryMessageRepository) RemoveReaction(ctx context.Context, id string, userID uuid.UUID, emoji string) error {
	return r.mutate(id, func(m *message.Message) {
		m.RemoveReaction(userID, emoji)
	})
}

func (r *MemoryMessageRepository) SetPin(ctx context.Context, key room.Key, messageID *string, pinnedBy uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if messageID == nil {
		delete(r.pins, key)
		return nil
	}
	r.pins[key] = message.Pin{
		ConversationKey: key,
		MessageID:       *messageID,
		PinnedBy:        pinnedBy,
		PinnedAt:        r.now().UTC(),
	}
	return nil
}

func (r *MemoryMessageRepository) GetPin(ctx context.Context, key room.Key) (*message.Pin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pin, ok := r.pins[key]
	if !ok {
		return nil, nil
	}
	return &pin, nil
}

func (r *MemoryMessageRepository) ListHistory(ctx context.Context, key room.Key, viewerID uuid.UUID, cursor string, limit int) (message.Page, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return message.Page{}, err
	}
	limit = clampLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byConversation[key]
	page := message.Page{Messages: []message.Message{}}
	for i := len(ids) - 1; i >= 0; i-- {
		m := r.messages[ids[i]]
		if !m.VisibleTo(viewerID) || !after.after(*m) {
			continue
		}
		if len(page.Messages) == limit {
			page.NextCursor = encodeCursor(page.Messages[limit-1])
			break
		}
		page.Messages = append(page.Messages, m.Clone())
	}
	return page, nil
}

func (r *MemoryMessageRepository) Search(ctx context.Context, key room.Key, viewerID uuid.UUID, query string, limit int) ([]message.Message, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty search query", parley_errors.ErrValidation)
	}
	limit = clampLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byConversation[key]
	out := []message.Message{}
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.messages[ids[i]]
		if !m.VisibleTo(viewerID) {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (r *MemoryMessageRepository) Recall(ctx context.Context, id string) error {
	return r.mutate(id, func(m *message.Message) {
		m.IsDeleted = true
	})
}

func (r *MemoryMessageRepository) DeleteFor(ctx context.Context, id string, userID uuid.UUID) error {
	return r.mutate(id, func(m *message.Message) {
		m.HideFor(userID)
	})
}

func (r *MemoryMessageRepository) mutate(id string, fn func(m *message.Message)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return parley_errors.ErrNotFound
	}
	fn(m)
	return nil
}
