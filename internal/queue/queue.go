package queue

import (
	"context"
)

const (
	// EnqueueQueueName is the work queue other services publish failed
	// deliveries to.
	EnqueueQueueName = "retry.enqueue"

	// EnqueueDLQName holds messages rejected as unparseable or invalid.
	EnqueueDLQName = "dlq.retry.enqueue"
)

// Publisher publishes retry-enqueue messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg RetryEnqueueMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg RetryEnqueueMessage) error

// Consumer consumes retry-enqueue messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
