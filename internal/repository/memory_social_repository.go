package repository

import (
	"context"
	"sync"

	"parley-chat/internal/domain/social"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
)

type blockKey struct {
	blocker uuid.UUID
	blocked uuid.UUID
}

type memberKey struct {
	group uuid.UUID
	user  uuid.UUID
}

// MemorySocialRepository is a mutable social graph for tests and SOCIAL_STORE=memory.
type MemorySocialRepository struct {
	mu      sync.RWMutex
	blocks  map[blockKey]struct{}
	members map[memberKey]social.Role
	groups  map[uuid.UUID]social.Group
}

func NewMemorySocialRepository() *MemorySocialRepository {
	return &MemorySocialRepository{
		blocks:  make(map[blockKey]struct{}),
		members: make(map[memberKey]social.Role),
		groups:  make(map[uuid.UUID]social.Group),
	}
}

func (r *MemorySocialRepository) Block(blockerID, blockedID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[blockKey{blockerID, blockedID}] = struct{}{}
}

func (r *MemorySocialRepository) Unblock(blockerID, blockedID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocks, blockKey{blockerID, blockedID})
}

func (r *MemorySocialRepository) PutGroup(g social.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g
}

// AddMember registers the group implicitly when it is unknown.
func (r *MemorySocialRepository) AddMember(groupID, userID uuid.UUID, role social.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[groupID]; !ok {
		r.groups[groupID] = social.Group{ID: groupID}
	}
	r.members[memberKey{groupID, userID}] = role
}

func (r *MemorySocialRepository) RemoveMember(groupID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, memberKey{groupID, userID})
}

// Load applies a fixture, the same shape the migrate tool seeds.
func (r *MemorySocialRepository) Load(fx SocialFixture) {
	for _, g := range fx.Groups {
		r.PutGroup(g)
	}
	for _, m := range fx.Members {
		r.AddMember(m.GroupID, m.UserID, m.Role)
	}
	for _, b := range fx.Blocks {
		r.Block(b.BlockerID, b.BlockedID)
	}
}

func (r *MemorySocialRepository) IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blocks[blockKey{blockerID, blockedID}]
	return ok, nil
}

func (r *MemorySocialRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[memberKey{groupID, userID}]
	return ok, nil
}

func (r *MemorySocialRepository) Role(ctx context.Context, groupID, userID uuid.UUID) (social.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[memberKey{groupID, userID}], nil
}

func (r *MemorySocialRepository) AdminsOnly(ctx context.Context, groupID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return false, parley_errors.ErrNotFound
	}
	return g.AdminsOnly, nil
}
