package repository

import (
	"context"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	"parley-chat/internal/domain/social"
	"parley-chat/internal/domain/upload"

	"github.com/google/uuid"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// MessageRepository is the durable message store. It is the single source of truth
// for messages; every mutation is last-writer-wins at field level.
type MessageRepository interface {
	Append(ctx context.Context, m *message.Message) (string, error)
	GetByID(ctx context.Context, id string) (message.Message, error)

	MarkSeen(ctx context.Context, id string, userID uuid.UUID) error
	MarkConversationSeen(ctx context.Context, key room.Key, userID uuid.UUID) (int64, error)

	AddReaction(ctx context.Context, id string, userID uuid.UUID, emoji string) error
	RemoveReaction(ctx context.Context, id string, userID uuid.UUID, emoji string) error

	SetPin(ctx context.Context, key room.Key, messageID *string, pinnedBy uuid.UUID) error
	GetPin(ctx context.Context, key room.Key) (*message.Pin, error)

	ListHistory(ctx context.Context, key room.Key, viewerID uuid.UUID, cursor string, limit int) (message.Page, error)
	Search(ctx context.Context, key room.Key, viewerID uuid.UUID, query string, limit int) ([]message.Message, error)

	Recall(ctx context.Context, id string) error
	DeleteFor(ctx context.Context, id string, userID uuid.UUID) error
}

// SocialGraph answers who may message whom and who is in a group.
type SocialGraph interface {
	IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error)
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	// Role returns the empty role when userID is not a member.
	Role(ctx context.Context, groupID, userID uuid.UUID) (social.Role, error)
	AdminsOnly(ctx context.Context, groupID uuid.UUID) (bool, error)
}

// UploadRepository is the ledger of attachment bodies written to the blob store.
type UploadRepository interface {
	Create(ctx context.Context, rec *upload.Record) error
	MarkStored(ctx context.Context, id uuid.UUID, url string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]upload.Record, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
