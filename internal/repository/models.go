package repository

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
	"gorm.io/datatypes"
)

// NotificationRecordModel is the persistence model for the notification_records table.
type NotificationRecordModel struct {
	ID           string            `gorm:"type:uuid;primaryKey"`
	Channel      domain.Channel    `gorm:"type:varchar(16);not null"`
	Source       domain.Source     `gorm:"type:varchar(16);not null"`
	Recipient    string            `gorm:"type:varchar(320);not null"`
	Subject      string            `gorm:"type:text"`
	Message      string            `gorm:"type:text"`
	Outcome      domain.Outcome    `gorm:"type:varchar(16);not null"`
	ErrorMessage string            `gorm:"type:text"`
	AttemptCount int               `gorm:"not null"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"type:timestamptz;not null"`
	UpdatedAt    time.Time         `gorm:"type:timestamptz;not null"`
}

func (NotificationRecordModel) TableName() string {
	return "notification_records"
}

func recordModelFromDomain(r *domain.NotificationRecord) *NotificationRecordModel {
	if r == nil {
		return nil
	}

	return &NotificationRecordModel{
		ID:           r.ID,
		Channel:      r.Channel,
		Source:       r.Source,
		Recipient:    r.Recipient,
		Subject:      r.Subject,
		Message:      r.Message,
		Outcome:      r.Outcome,
		ErrorMessage: r.ErrorMessage,
		AttemptCount: r.AttemptCount,
		Metadata:     metadataToJSONMap(r.Metadata),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func recordModelToDomain(m *NotificationRecordModel) *domain.NotificationRecord {
	if m == nil {
		return nil
	}

	return &domain.NotificationRecord{
		ID:           m.ID,
		Channel:      m.Channel,
		Source:       m.Source,
		Recipient:    m.Recipient,
		Subject:      m.Subject,
		Message:      m.Message,
		Outcome:      m.Outcome,
		ErrorMessage: m.ErrorMessage,
		AttemptCount: m.AttemptCount,
		Metadata:     metadataFromJSONMap(m.Metadata),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func metadataToJSONMap(in map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func metadataFromJSONMap(in datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch value := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = value
		default:
			out[k] = fmt.Sprint(value)
		}
	}
	return out
}
