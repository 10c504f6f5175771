package events

import "strings"

// RoomChannel is the pub/sub channel carrying a room's envelopes between nodes.
func RoomChannel(roomKey string) string {
	return ChannelPrefixRoom + roomKey
}

func PresenceChannel(userID string) string {
	return ChannelPrefixPresence + userID
}

// RoomFromChannel extracts the room key from a room channel name.
func RoomFromChannel(channel string) (string, bool) {
	key, ok := strings.CutPrefix(channel, ChannelPrefixRoom)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// RoomPattern matches every room channel.
func RoomPattern() string {
	return ChannelPrefixRoom + "*"
}
