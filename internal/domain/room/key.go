// Package room derives the canonical broadcast scope of a conversation.
//
// A group conversation's key is the group id itself. A direct conversation's
// key is the two user ids sorted and joined with a separator, so both
// participants compute the same key regardless of who sends first.
package room

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const directSeparator = "_"

var ErrInvalidTarget = errors.New("exactly one of group or receiver must be set")

// Key identifies a room. It is derived, never stored on its own.
type Key string

// Direct returns the key for the conversation between a and b. Direct(a, b) == Direct(b, a).
func Direct(a, b uuid.UUID) Key {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return Key(x + directSeparator + y)
}

// Group returns the key for a group conversation.
func Group(groupID uuid.UUID) Key {
	return Key(groupID.String())
}

// Target is where a message is addressed. Exactly one field is set.
type Target struct {
	GroupID    uuid.NullUUID
	ReceiverID uuid.NullUUID
}

func (t Target) Validate() error {
	if t.GroupID.Valid == t.ReceiverID.Valid {
		return ErrInvalidTarget
	}
	if t.GroupID.Valid && t.GroupID.UUID == uuid.Nil {
		return ErrInvalidTarget
	}
	if t.ReceiverID.Valid && t.ReceiverID.UUID == uuid.Nil {
		return ErrInvalidTarget
	}
	return nil
}

// ForTarget resolves the room a sender's message to target belongs to.
func ForTarget(sender uuid.UUID, target Target) (Key, error) {
	if err := target.Validate(); err != nil {
		return "", err
	}
	if target.GroupID.Valid {
		return Group(target.GroupID.UUID), nil
	}
	return Direct(sender, target.ReceiverID.UUID), nil
}

func (k Key) String() string {
	return string(k)
}

func (k Key) IsDirect() bool {
	_, _, ok := k.Participants()
	return ok
}

// Participants parses a direct key back into its two user ids.
func (k Key) Participants() (uuid.UUID, uuid.UUID, bool) {
	left, right, found := strings.Cut(string(k), directSeparator)
	if !found {
		return uuid.Nil, uuid.Nil, false
	}
	a, err := uuid.Parse(left)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	b, err := uuid.Parse(right)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return a, b, true
}

// GroupID returns the group a key refers to, if it is a group key.
func (k Key) GroupID() (uuid.UUID, bool) {
	if strings.Contains(string(k), directSeparator) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(string(k))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Includes reports whether userID is one of the two participants of a direct key.
func (k Key) Includes(userID uuid.UUID) bool {
	a, b, ok := k.Participants()
	return ok && (a == userID || b == userID)
}

// Parse validates a key received from a client.
func Parse(raw string) (Key, error) {
	k := Key(strings.TrimSpace(raw))
	if k.IsDirect() {
		a, b, _ := k.Participants()
		if Direct(a, b) != k {
			return "", errors.New("direct room key is not canonical")
		}
		return k, nil
	}
	if id, ok := k.GroupID(); ok {
		return Group(id), nil
	}
	return "", errors.New("invalid room key")
}
