package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-service/internal/domain"
	"github.com/kursadbilgin/notification-service/internal/observability"
	"github.com/kursadbilgin/notification-service/internal/queue"
	"go.uber.org/zap"
)

// Submitter runs a request through the record builder and dispatcher.
type Submitter interface {
	Submit(ctx context.Context, req domain.DeliveryRequest, origin Origin) (Result, error)
}

// DeliveryError reports a dispatch that did not end in success. Returning it
// from a queue handler rejects the delivery without requeue.
type DeliveryError struct {
	NotificationID string
	Result         Result
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification %q not delivered: %s", e.NotificationID, e.Result.Message)
}

// DeliveryWorker drives queued notification events through the dispatcher.
type DeliveryWorker struct {
	consumer   queue.Consumer
	dispatcher Submitter
	queueName  string
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewDeliveryWorker(
	consumer queue.Consumer,
	dispatcher Submitter,
	queueName string,
	logger *zap.Logger,
) (*DeliveryWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if strings.TrimSpace(queueName) == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryWorker{
		consumer:   consumer,
		dispatcher: dispatcher,
		queueName:  queueName,
		logger:     logger,
	}, nil
}

func (w *DeliveryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the notification queue until ctx is canceled.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.logger.Info("delivery worker started", zap.String("queue", w.queueName))

	if err := w.consumer.Consume(ctx, w.queueName, w.HandleMessage); err != nil {
		w.logger.Error("delivery worker stopped with error", zap.String("queue", w.queueName), zap.Error(err))
		return err
	}

	w.logger.Info("delivery worker stopped", zap.String("queue", w.queueName))
	return nil
}

// HandleMessage returns nil only when the notification was delivered and its
// success was recorded.
func (w *DeliveryWorker) HandleMessage(ctx context.Context, msg queue.Message) error {
	event := msg.Event
	if id := strings.TrimSpace(event.NotificationID); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}

	w.metrics.IncWorkerInFlight()
	defer w.metrics.DecWorkerInFlight()

	logger := observability.WithContextLogger(w.logger, ctx)
	logger.Info("message received",
		zap.String("queue", msg.Queue),
		zap.String("routingKey", msg.RoutingKey),
		zap.String("type", event.Type),
		zap.Bool("redelivered", msg.Redelivered),
	)

	result, err := w.dispatcher.Submit(ctx, event.DeliveryRequest(), Origin{
		Source:         domain.SourceQueue,
		Queue:          msg.Queue,
		RoutingKey:     msg.RoutingKey,
		NotificationID: event.NotificationID,
		OriginalType:   event.Type,
		Payload:        msg.Body,
	})
	if err != nil {
		return fmt.Errorf("submit notification %q: %w", event.NotificationID, err)
	}
	if !result.Succeeded() {
		return &DeliveryError{NotificationID: event.NotificationID, Result: result}
	}

	return nil
}
