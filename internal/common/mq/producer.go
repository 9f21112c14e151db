// Package mq provides the event stream producer used for best-effort
// contest lifecycle events.
package mq

import "context"

// Message represents an event published to the stream.
type Message struct {
	// Key is used for partitioning; events for one contest share a key.
	Key []byte
	// Body is the message payload.
	Body []byte
	// Headers carry optional metadata.
	Headers map[string]string
}

// Producer defines the interface for publishing messages.
type Producer interface {
	// Publish publishes a message to the specified topic.
	Publish(ctx context.Context, topic string, message *Message) error

	// Close closes the producer connection.
	Close() error
}

// NopProducer discards all messages. Used when no broker is configured.
type NopProducer struct{}

// Publish discards the message.
func (NopProducer) Publish(ctx context.Context, topic string, message *Message) error { return nil }

// Close is a no-op.
func (NopProducer) Close() error { return nil }
