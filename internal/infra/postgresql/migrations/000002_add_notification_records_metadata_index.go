package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Metadata lookups such as NotificationId correlation go through a GIN index.
func addNotificationRecordsMetadataIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_notification_records_metadata_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notification_records_metadata ON notification_records USING GIN (metadata jsonb_path_ops)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_notification_records_metadata`).Error
		},
	}
}
