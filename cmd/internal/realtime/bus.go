// Package realtime contains the broadcast bus and the WebSocket gateway
// that delivers conversation messages to connected participants.
package realtime

import "context"

// Topic returns the bus topic for one conversation's message stream.
func Topic(conversationID string) string {
	return "chat:" + conversationID
}

// Subscription is a live feed of payloads published to one topic. Close is
// idempotent; after Close the channel returned by C is closed.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

// Bus fans serialized message events out to every subscriber of a topic,
// across all server instances. Publish does not wait for delivery; slow
// subscribers may miss payloads (the durable store, not the bus, is the
// source of truth for history).
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}
