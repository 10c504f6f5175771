package events

import (
	"encoding/json"
	"time"
)

// Envelope is the frame every websocket subscriber receives.
type Envelope struct {
	EventType  string          `json:"event_type"`
	RoomKey    string          `json:"room_key,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(eventType, roomKey string, payload interface{}) (Envelope, error) {
	env := Envelope{
		EventType:  eventType,
		RoomKey:    roomKey,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = data
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses the payload into v.
func (e Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
