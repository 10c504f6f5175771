package events

// Event type constants. These follow the format: domain.action

// Room events (fan-out to every subscriber of a room)
const (
	EventMessageNew      = "message.new"
	EventMessageSeen     = "message.seen"
	EventMessageReaction = "message.reaction"
	EventMessagePinned   = "message.pinned"
	EventMessageDeleted  = "message.deleted"
)

// Ephemeral signals (never persisted, best effort)
const (
	EventTyping        = "typing"
	EventReactionPulse = "reaction.pulse"
)

// Presence events
const (
	EventPresenceOnline  = "presence.online"
	EventPresenceOffline = "presence.offline"
)

// Replies to client frames on the same connection
const (
	EventAck   = "ack"
	EventError = "error"
)

// Redis channel prefixes
const (
	ChannelPrefixRoom     = "channel:room:"
	ChannelPrefixPresence = "channel:presence:"
)
