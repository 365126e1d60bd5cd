package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-service/internal/repository"
	"gorm.io/gorm"
)

func createNotificationRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationRecordModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notification_records_created_at ON notification_records (created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_records_recipient ON notification_records (recipient, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_records_channel_outcome ON notification_records (channel, outcome, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationRecordModel{})
		},
	}
}
