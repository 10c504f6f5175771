package proxy

import (
	"context"

	"parley-chat/internal/commands"
)

// CommandGuard is the bus proxy that rejects commands whose actor may not
// touch the target conversation. Commands addressed by message id are checked
// by their handlers once the message is loaded.
type CommandGuard struct {
	acl *AccessControl
}

func NewCommandGuard(acl *AccessControl) *CommandGuard {
	return &CommandGuard{acl: acl}
}

func (g *CommandGuard) Authorize(ctx context.Context, cmd commands.Command) error {
	switch c := cmd.(type) {
	case commands.SendMessageCommand:
		return g.acl.CanSendMessage(ctx, c.SenderID, c.Target())
	case commands.SetPinCommand:
		return g.acl.CanPin(ctx, c.UserID, c.ConversationKey)
	case commands.MarkConversationSeenCommand:
		return g.acl.CanViewConversation(ctx, c.UserID, c.ConversationKey)
	case commands.TypingCommand:
		return g.acl.CanSubscribe(ctx, c.UserID, c.RoomKey)
	case commands.ReactionPulseCommand:
		return g.acl.CanSubscribe(ctx, c.UserID, c.RoomKey)
	}
	return nil
}
