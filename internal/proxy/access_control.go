package proxy

import (
	"context"
	"fmt"

	"parley-chat/internal/domain/room"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
)

// AccessControl decides who may send to, read, pin in or subscribe to a conversation.
type AccessControl struct {
	social repository.SocialGraph
}

func NewAccessControl(social repository.SocialGraph) *AccessControl {
	return &AccessControl{social: social}
}

// CanSendMessage rejects blocked pairs in either direction, non-members and
// plain members of admins-only groups.
func (a *AccessControl) CanSendMessage(ctx context.Context, senderID uuid.UUID, target room.Target) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}

	if target.ReceiverID.Valid {
		receiverID := target.ReceiverID.UUID
		if receiverID == senderID {
			return nil
		}
		return a.ensureNotBlocked(ctx, senderID, receiverID)
	}

	groupID := target.GroupID.UUID
	role, err := a.social.Role(ctx, groupID, senderID)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("%w: not a member of this group", parley_errors.ErrForbidden)
	}
	banned, err := a.social.IsBlocked(ctx, groupID, senderID)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: banned from this group", parley_errors.ErrForbidden)
	}
	muted, err := a.social.IsBlocked(ctx, senderID, groupID)
	if err != nil {
		return err
	}
	if muted {
		return fmt.Errorf("%w: you have blocked this group", parley_errors.ErrForbidden)
	}

	adminsOnly, err := a.social.AdminsOnly(ctx, groupID)
	if err != nil {
		return err
	}
	if adminsOnly && !role.CanModerate() {
		return fmt.Errorf("%w: only admins can send messages", parley_errors.ErrForbidden)
	}
	return nil
}

// CanViewConversation allows the two participants of a direct key and the
// members of a group. Blocking hides nothing already delivered.
func (a *AccessControl) CanViewConversation(ctx context.Context, userID uuid.UUID, key room.Key) error {
	if key.IsDirect() {
		if !key.Includes(userID) {
			return parley_errors.ErrForbidden
		}
		return nil
	}
	groupID, ok := key.GroupID()
	if !ok {
		return fmt.Errorf("%w: invalid conversation key", parley_errors.ErrValidation)
	}
	return a.ensureMember(ctx, groupID, userID)
}

// CanSubscribe gates websocket room joins and ephemeral signals.
func (a *AccessControl) CanSubscribe(ctx context.Context, userID uuid.UUID, key room.Key) error {
	return a.CanViewConversation(ctx, userID, key)
}

// CanPin allows either participant of a direct conversation and owners or
// admins of a group.
func (a *AccessControl) CanPin(ctx context.Context, userID uuid.UUID, key room.Key) error {
	if key.IsDirect() {
		return a.CanViewConversation(ctx, userID, key)
	}
	groupID, ok := key.GroupID()
	if !ok {
		return fmt.Errorf("%w: invalid conversation key", parley_errors.ErrValidation)
	}
	role, err := a.social.Role(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !role.CanModerate() {
		return fmt.Errorf("%w: only admins can pin messages", parley_errors.ErrForbidden)
	}
	return nil
}

func (a *AccessControl) ensureNotBlocked(ctx context.Context, senderID, receiverID uuid.UUID) error {
	blocked, err := a.social.IsBlocked(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("%w: you are blocked by this user", parley_errors.ErrForbidden)
	}
	blocked, err = a.social.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("%w: you have blocked this user", parley_errors.ErrForbidden)
	}
	return nil
}

func (a *AccessControl) ensureMember(ctx context.Context, groupID, userID uuid.UUID) error {
	ok, err := a.social.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return parley_errors.ErrForbidden
	}
	return nil
}
