// Package bus wraps the message-bus producer behind a small interface so
// delivery code and tests never touch the Kafka client directly.
package bus

import "context"

// Message is one record bound for a topic.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Producer issues sends asynchronously. Send never blocks on broker I/O;
// done is invoked exactly once when the broker acknowledges or rejects
// the record. Flush blocks until every in-flight send has resolved.
type Producer interface {
	Send(ctx context.Context, msg Message, done func(error))
	Flush(ctx context.Context) error
	Close()
}

// Factory opens a producer for a named bus connection. Split out so tests
// can hand the delivery layer a scripted producer.
type Factory interface {
	Producer(name string) (Producer, error)
}
