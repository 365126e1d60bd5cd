package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-service/internal/observability"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"go.uber.org/zap"
)

const defaultRetentionInterval = time.Hour

// RetentionSweeper periodically deletes audit records older than the
// retention period.
type RetentionSweeper struct {
	store     repository.AuditStore
	logger    *zap.Logger
	metrics   *observability.Metrics
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewRetentionSweeper(
	store repository.AuditStore,
	retention time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) (*RetentionSweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention period must be positive")
	}
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetentionSweeper{
		store:     store,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}, nil
}

func (s *RetentionSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *RetentionSweeper) Start(ctx context.Context) error {
	// Sweep once at startup so a long interval does not delay the first cleanup.
	if _, err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retention initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records older than %s: %w", cutoff.Format(time.RFC3339), err)
	}

	s.metrics.AddAuditRecordsDeleted(deleted)
	if deleted > 0 {
		s.logger.Info("retention sweep removed audit records",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}

	return deleted, nil
}
