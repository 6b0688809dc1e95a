package domain

import (
	"context"
	"encoding/json"
)

// Event is the envelope producers hand to the event ingress. A nil Room addresses every
// connected client.
type Event struct {
	Room    *RoomKey        `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Exclude ConnectionID    `json:"exclude,omitzero"`
}

// EventPublisher publishes events for delivery by the hub.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
