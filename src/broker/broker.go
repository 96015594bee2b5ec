// Package broker abstracts the message transport between the webhook
// receiver, runner agents, and result consumers. An in-memory
// implementation serves single-process local mode; Redpanda serves
// distributed mode.
package broker

import "context"

// Broker abstracts message publishing and consumption.
type Broker interface {
	// Publish sends a message to a topic. key selects the partition on
	// Kafka-compatible brokers and is ignored in memory; trigger and
	// result messages are keyed by run ID so one run's messages stay
	// ordered.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel of messages from a topic. groupID
	// coordinates consumer groups on Kafka-compatible brokers, so
	// multiple runner agents in one group split the trigger stream.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message is one consumed record.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}
