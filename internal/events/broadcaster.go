package events

import "context"

// DeliveryReport summarizes one local fan-out.
type DeliveryReport struct {
	RoomKey   string
	Attempted int
	Delivered int
	// Dropped holds the connection ids whose queue was full or closed.
	Dropped []string
}

func (r DeliveryReport) Partial() bool {
	return len(r.Dropped) > 0
}

// Broadcaster delivers an envelope to every current subscriber of a room,
// skipping exceptConn when it is set. Delivery is best effort; the returned
// error only reports that the envelope could not be handed off at all.
type Broadcaster interface {
	Publish(ctx context.Context, env Envelope, exceptConn string) (DeliveryReport, error)
}
