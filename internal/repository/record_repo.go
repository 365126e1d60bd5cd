package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-service/internal/domain"
	"gorm.io/gorm"
)

var _ AuditStore = (*GormRecordRepo)(nil)

type outcomeCount struct {
	Outcome domain.Outcome `gorm:"column:outcome"`
	Count   int64          `gorm:"column:count"`
}

// GormRecordRepo stores audit records in PostgreSQL.
type GormRecordRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRecordRepo(db *gorm.DB) *GormRecordRepo {
	return &GormRecordRepo{db: db, now: time.Now}
}

func (r *GormRecordRepo) Create(ctx context.Context, record *domain.NotificationRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}

	model := recordModelFromDomain(record)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*record = *recordModelToDomain(model)
	return nil
}

func (r *GormRecordRepo) Update(ctx context.Context, id string, record *domain.NotificationRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("record is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	now := r.now().UTC()
	result := r.db.WithContext(ctx).
		Model(&NotificationRecordModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"recipient":     record.Recipient,
			"subject":       record.Subject,
			"message":       record.Message,
			"outcome":       record.Outcome,
			"error_message": record.ErrorMessage,
			"attempt_count": record.AttemptCount,
			"metadata":      metadataToJSONMap(record.Metadata),
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	record.UpdatedAt = now
	return true, nil
}

func (r *GormRecordRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var model NotificationRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormRecordRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error) {
	query := r.filtered(ctx, params)
	if params.Outcome != nil {
		query = query.Where("outcome = ?", *params.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)

	var models []NotificationRecordModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, total, nil
}

func (r *GormRecordRepo) Stats(ctx context.Context, params ListParams) (Stats, error) {
	var rows []outcomeCount
	err := r.filtered(ctx, params).
		Select("outcome, COUNT(*) as count").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, row := range rows {
		stats.add(row.Outcome, row.Count)
	}
	return stats, nil
}

func (r *GormRecordRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&NotificationRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormRecordRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRecordRepo) filtered(ctx context.Context, params ListParams) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&NotificationRecordModel{})

	if recipient := strings.TrimSpace(params.Recipient); recipient != "" {
		query = query.Where("recipient = ?", recipient)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	return query
}
