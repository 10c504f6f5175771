package services

import (
	"context"
	"errors"
	"sync"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/social"
	"parley-chat/internal/events"
	"parley-chat/internal/proxy"
	"parley-chat/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type published struct {
	env    events.Envelope
	except string
}

// recordingBroadcaster keeps every envelope in publish order.
type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (b *recordingBroadcaster) Publish(ctx context.Context, env events.Envelope, exceptConn string) (events.DeliveryReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return events.DeliveryReport{}, b.err
	}
	if err := ctx.Err(); err != nil {
		return events.DeliveryReport{}, err
	}
	b.sent = append(b.sent, published{env: env, except: exceptConn})
	return events.DeliveryReport{RoomKey: env.RoomKey, Attempted: 1, Delivered: 1}, nil
}

func (b *recordingBroadcaster) events() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.sent...)
}

func (b *recordingBroadcaster) ofType(eventType string) []events.Envelope {
	var out []events.Envelope
	for _, p := range b.events() {
		if p.env.EventType == eventType {
			out = append(out, p.env)
		}
	}
	return out
}

// mockMessageRepository overrides Append and defers everything else to memory.
type mockMessageRepository struct {
	mock.Mock
	*repository.MemoryMessageRepository
}

func (m *mockMessageRepository) Append(ctx context.Context, msg *message.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type memoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]message.Message
	lookups int
	failing bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{entries: make(map[string]message.Message)}
}

func (s *memoryIdempotency) Lookup(ctx context.Context, senderID uuid.UUID, tempID string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.failing {
		return nil, errors.New("redis down")
	}
	m, ok := s.entries[senderID.String()+":"+tempID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memoryIdempotency) Remember(ctx context.Context, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[m.SenderID.String()+":"+m.ClientTempID] = m
	return nil
}

type world struct {
	graph  *repository.MemorySocialRepository
	access *proxy.AccessControl
	repo   *repository.MemoryMessageRepository
	bc     *recordingBroadcaster

	alice, bob, carol, mallory uuid.UUID
	general, announcements    uuid.UUID
}

func newWorld() *world {
	w := &world{
		graph:         repository.NewMemorySocialRepository(),
		repo:          repository.NewMemoryMessageRepository(),
		bc:            &recordingBroadcaster{},
		alice:         uuid.New(),
		bob:           uuid.New(),
		carol:         uuid.New(),
		mallory:       uuid.New(),
		general:       uuid.New(),
		announcements: uuid.New(),
	}
	w.graph.AddMember(w.general, w.alice, social.RoleOwner)
	w.graph.AddMember(w.general, w.bob, social.RoleMember)
	w.graph.AddMember(w.general, w.carol, social.RoleMember)
	w.graph.PutGroup(social.Group{ID: w.announcements, AdminsOnly: true})
	w.graph.AddMember(w.announcements, w.alice, social.RoleAdmin)
	w.graph.AddMember(w.announcements, w.bob, social.RoleMember)
	w.access = proxy.NewAccessControl(w.graph)
	return w
}

func to(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
