package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-service/internal/domain"
	"github.com/kursadbilgin/notification-service/internal/queue"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"go.uber.org/zap"
)

// NotificationService backs the enqueue and reporting routes.
type NotificationService struct {
	records   repository.AuditStore
	publisher queue.Publisher
	queueName string
	logger    *zap.Logger
}

func NewNotificationService(
	records repository.AuditStore,
	publisher queue.Publisher,
	queueName string,
	logger *zap.Logger,
) (*NotificationService, error) {
	if records == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		records:   records,
		publisher: publisher,
		queueName: queueName,
		logger:    logger,
	}, nil
}

// Enqueue publishes event to the notification queue, generating a
// NotificationId when the caller did not supply one.
func (s *NotificationService) Enqueue(ctx context.Context, event queue.NotificationEvent) (queue.NotificationEvent, error) {
	if s.publisher == nil {
		return event, fmt.Errorf("queue publishing is not configured")
	}

	event.Type = strings.TrimSpace(event.Type)
	event.To = strings.TrimSpace(event.To)
	if event.Type == "" {
		return event, fmt.Errorf("%w: type is required", domain.ErrValidation)
	}
	if event.To == "" {
		return event, fmt.Errorf("%w: to is required", domain.ErrValidation)
	}
	if strings.TrimSpace(event.NotificationID) == "" {
		event.NotificationID = uuid.NewString()
	}

	if err := s.publisher.Publish(ctx, s.queueName, event); err != nil {
		s.logger.Error("failed to publish notification event",
			zap.String("notificationId", event.NotificationID),
			zap.String("queue", s.queueName),
			zap.Error(err),
		)
		return event, fmt.Errorf("failed to publish notification: %w", err)
	}

	s.logger.Info("notification event enqueued",
		zap.String("notificationId", event.NotificationID),
		zap.String("type", event.Type),
		zap.String("queue", s.queueName),
	)
	return event, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	return s.records.GetByID(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRecord, int64, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	return s.records.List(ctx, params)
}

func (s *NotificationService) Stats(ctx context.Context, params repository.ListParams) (repository.Stats, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return repository.Stats{}, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	return s.records.Stats(ctx, params)
}

// Ready checks the audit store.
func (s *NotificationService) Ready(ctx context.Context) error {
	return s.records.Ping(ctx)
}
