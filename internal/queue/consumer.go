package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/taskhive/pushguard/internal/domain"
	"go.uber.org/zap"
)

// RabbitMQConsumer drains retry enqueue messages and feeds them to the
// intake handler. Acknowledgement follows the message fate: admitted
// messages are acked, everything else is dead-lettered unless a redelivery
// could still succeed (see requeueable).
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx is canceled, re-establishing the channel with
// exponential backoff whenever the broker connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queueName string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queueName == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	wait := reconnectBackoff
	for {
		err := c.drainQueue(ctx, queueName, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			wait = reconnectBackoff
			continue
		}

		c.logger.Warn("retry enqueue consumer lost its channel, reconnecting",
			zap.String("queue", queueName),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) drainQueue(ctx context.Context, queueName string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	var msg RetryEnqueueMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("dead-lettering retry enqueue message: malformed body",
			zap.Error(err),
			zap.String("messageId", d.MessageId),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to dead-letter malformed message: %w", rejectErr)
		}
		return nil
	}

	if err := msg.Validate(); err != nil {
		c.logger.Warn("dead-lettering retry enqueue message: validation failed",
			zap.Error(err),
			zap.String("notificationId", msg.NotificationID),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to dead-letter invalid message: %w", rejectErr)
		}
		return nil
	}

	if err := handler(ctx, msg); err != nil {
		// An invalid enqueue request will never be admitted no matter how
		// often it is redelivered; only store failures earn a requeue.
		if !requeueable(err) {
			c.logger.Warn("dead-lettering retry enqueue message: rejected by intake",
				zap.Error(err),
				zap.String("notificationId", msg.NotificationID),
			)
			if rejectErr := d.Reject(false); rejectErr != nil {
				return fmt.Errorf("failed to dead-letter rejected message: %w", rejectErr)
			}
			return nil
		}

		c.logger.Warn("requeueing retry enqueue message after intake failure",
			zap.Error(err),
			zap.String("notificationId", msg.NotificationID),
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("intake failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack retry enqueue message: %w", err)
	}

	return nil
}

// requeueable reports whether a redelivery could succeed where this
// attempt failed.
func requeueable(err error) bool {
	return !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrConflict)
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
