// Package relay moves event records between producers and the ingestion
// service through a durable message broker. Delivery is at-least-once: a
// message is acknowledged only after ingestion has persisted it, and a
// consumer that loses its stream reconnects and resubscribes on its own.
package relay

import (
	"context"
)

// Broker opens sessions to a message broker.
type Broker interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is one broker connection.
type Session interface {
	// Setup declares a direct durable exchange and one durable queue per name,
	// bound with the queue name as routing key.
	Setup(ctx context.Context, exchange string, queues []string) error
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error
	// Consume starts delivery from queue. The channel is closed when the
	// stream is lost or the session closes.
	Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error)
	Close() error
}

// Message is an outgoing message.
type Message struct {
	Body        []byte
	ContentType string
	MessageID   string
	Persistent  bool
}

// Acknowledger settles one delivery.
type Acknowledger interface {
	Ack() error
	Nack(requeue bool) error
}

// Delivery is an incoming message awaiting settlement.
type Delivery struct {
	Body        []byte
	MessageID   string
	Redelivered bool
	Acknowledger
}
