package repository

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fulfillment-service/internal/models"
)

// partial index: one non-terminal return per order
const activeReturnIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_returns_one_active_per_order
ON returns (order_id) WHERE status NOT IN ('completed', 'cancelled')`

// Migrate creates or updates the fulfillment tables. It is idempotent.
func Migrate(db *gorm.DB, logger *logrus.Logger) error {
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.TrackingEvent{},
		&models.Return{},
		&models.ReturnItem{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec(activeReturnIndex).Error; err != nil {
		return fmt.Errorf("failed to create active return index: %w", err)
	}

	logger.Info("Database migrated")
	return nil
}
