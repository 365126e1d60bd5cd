package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// deliveryChannel is the subset of *amqp.Channel the consumer drives.
type deliveryChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	open     func(ctx context.Context) (deliveryChannel, error)
	backoff  time.Duration
	prefetch int
	logger   *zap.Logger
	recorder MessageRecorder
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger, recorder MessageRecorder) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &RabbitMQConsumer{
		client:   client,
		backoff:  reconnectBackoff,
		prefetch: prefetch,
		logger:   logger,
		recorder: recorder,
	}
	if client != nil {
		c.open = func(ctx context.Context) (deliveryChannel, error) {
			ch, err := client.channel(ctx)
			if err != nil {
				return nil, err
			}
			return ch, nil
		}
	}
	return c
}

// Consume processes deliveries one at a time until ctx is canceled,
// reconnecting with bounded backoff when the broker channel is lost.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.open == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := c.backoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = c.backoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	tag := "notification-consumer-" + uuid.NewString()
	deliveries, err := ch.Consume(
		queue,
		tag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	c.logger.Info("consuming queue", zap.String("queue", queue), zap.Int("prefetch", c.prefetch))

	stop := func() error {
		// Unacked prefetched deliveries are returned to the queue when the channel closes.
		if err := ch.Cancel(tag, false); err != nil {
			c.logger.Warn("failed to cancel consumer", zap.String("queue", queue), zap.Error(err))
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return stop()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if ctx.Err() != nil {
				return stop()
			}

			// The in-flight delivery always reaches ack or reject, even during shutdown.
			if err := c.handleDelivery(context.WithoutCancel(ctx), queue, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler MessageHandler) error {
	event, err := DecodeEvent(d.Body)
	if err != nil {
		c.logger.Warn("rejecting message: invalid payload",
			zap.Error(err),
			zap.String("queue", queue),
			zap.String("routingKey", d.RoutingKey),
		)
		return c.reject(queue, d, ResultPoison)
	}

	msg := Message{
		Event:       event,
		Queue:       queue,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
		Body:        d.Body,
	}

	if err := c.invoke(ctx, handler, msg); err != nil {
		c.logger.Warn("rejecting message: handler failed",
			zap.Error(err),
			zap.String("queue", queue),
			zap.String("notificationId", event.NotificationID),
		)
		return c.reject(queue, d, ResultRejected)
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	c.record(queue, ResultAcked)

	return nil
}

func (c *RabbitMQConsumer) invoke(ctx context.Context, handler MessageHandler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("message handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

func (c *RabbitMQConsumer) reject(queue string, d amqp.Delivery, result string) error {
	if err := d.Reject(false); err != nil {
		return fmt.Errorf("failed to reject delivery: %w", err)
	}
	c.record(queue, result)
	return nil
}

func (c *RabbitMQConsumer) record(queue, result string) {
	if c.recorder != nil {
		c.recorder.IncQueueMessage(queue, result)
	}
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
