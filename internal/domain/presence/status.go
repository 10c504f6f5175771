package presence

import "time"

const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// Status is a user's connection state as seen by the realtime gateway.
type Status struct {
	UserID      string     `json:"user_id"`
	IsOnline    bool       `json:"is_online"`
	State       string     `json:"status"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

func Offline(userID string) *Status {
	return &Status{UserID: userID, State: StateOffline}
}
