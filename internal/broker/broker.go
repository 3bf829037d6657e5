package broker

import (
	"context"
	"time"
)

// Message is a single record consumed from a topic. Offsets are assigned per
// topic in append order; with a single partition they define a total order
// over all events.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Broker abstracts a durable, ordered, at-least-once topic log with
// consumer-group offset tracking. The embedded Log implements it in-process;
// a networked broker client can be dropped in behind the same port.
type Broker interface {
	// CreateTopic ensures the topic exists. Idempotent.
	CreateTopic(ctx context.Context, topic string) error

	// Publish appends value to the topic. Messages on the same topic are
	// delivered to consumers in publish order.
	Publish(ctx context.Context, topic, key string, value []byte) error

	// Subscribe starts delivery from the group's last committed offset.
	// The returned channel is closed when the subscription ends; callers
	// resubscribe to resume, which redelivers uncommitted messages.
	Subscribe(ctx context.Context, topic, group string) (<-chan Message, error)

	// Commit marks offset as processed for the group on the topic.
	Commit(ctx context.Context, topic, group string, offset int64) error

	// Close shuts the broker down; active subscriptions are closed.
	Close() error
}
