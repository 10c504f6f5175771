package websocket

import (
	"context"
	"fmt"

	"parley-chat/internal/domain/room"
	"parley-chat/internal/proxy"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
)

// RoomAuthorizer decides whether a user may subscribe to a room key.
type RoomAuthorizer struct {
	access *proxy.AccessControl
}

func NewRoomAuthorizer(access *proxy.AccessControl) *RoomAuthorizer {
	return &RoomAuthorizer{access: access}
}

// Authorize parses raw and checks the user may see the conversation it names.
func (a *RoomAuthorizer) Authorize(ctx context.Context, userID uuid.UUID, raw string) (room.Key, error) {
	key, err := room.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	if err := a.access.CanSubscribe(ctx, userID, key); err != nil {
		return "", err
	}
	return key, nil
}
