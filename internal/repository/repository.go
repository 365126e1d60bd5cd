package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ListParams filters audit records. Nil and empty fields are ignored.
type ListParams struct {
	Recipient string
	Channel   *domain.Channel
	Outcome   *domain.Outcome
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// Stats aggregates record counts by outcome.
type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}

// AuditStore persists delivery records. Implementations must be safe for
// concurrent use.
type AuditStore interface {
	// Create persists a new record and assigns its ID and timestamps.
	Create(ctx context.Context, record *domain.NotificationRecord) error
	// Update overwrites the mutable fields of the record with the given id.
	// It reports false when no such record exists.
	Update(ctx context.Context, id string, record *domain.NotificationRecord) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error)
	// Stats counts records matching params; Outcome and paging are ignored.
	Stats(ctx context.Context, params ListParams) (Stats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

func normalizePage(page, pageSize int) (int, int) {
	page = max(page, 1)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return page, min(pageSize, maxPageSize)
}

func (s *Stats) add(outcome domain.Outcome, count int64) {
	s.Total += count
	switch outcome {
	case domain.OutcomeSuccess:
		s.Success += count
	case domain.OutcomeFailed:
		s.Failed += count
	case domain.OutcomePending:
		s.Pending += count
	}
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
