package queue

import (
	"context"
	"fmt"
	"strings"
)

// Publisher publishes notification events to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, event NotificationEvent) error
	Close() error
}

// MessageHandler handles a consumed message. A nil error acknowledges the
// delivery; any error rejects it without requeue.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer consumes notification events from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// MessageRecorder counts consumed messages by queue and result.
type MessageRecorder interface {
	IncQueueMessage(queue, result string)
}

// Delivery results reported to a MessageRecorder.
const (
	ResultAcked    = "acked"
	ResultRejected = "rejected"
	ResultPoison   = "poison"
)

const dlxExchangeName = "notifications.dlx"

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.notifications.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", routingKey(queue))
}

func routingKey(queue string) string {
	return strings.ToLower(strings.TrimSpace(queue))
}
