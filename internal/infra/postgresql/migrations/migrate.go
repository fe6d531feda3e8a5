package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/taskhive/pushguard/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_retry_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.RetryRecordModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_retry_records_due ON retry_records (next_retry_at) WHERE status IN ('pending', 'retrying')`,
					`CREATE INDEX IF NOT EXISTS idx_retry_records_user_status ON retry_records (user_id, status)`,
					`CREATE INDEX IF NOT EXISTS idx_retry_records_cleanup ON retry_records (created_at) WHERE status IN ('failed', 'success')`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RetryRecordModel{})
			},
		},
		{
			ID: "000002_create_delivery_metrics",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.MetricModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_delivery_metrics_user_ts ON delivery_metrics (user_id, timestamp DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_metrics_ts ON delivery_metrics (timestamp DESC)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.MetricModel{})
			},
		},
	})

	return m.Migrate()
}
