package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment-service/internal/models"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetOrder retrieves an order with its items and tracking history
func (r *orderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withHistory(r.db.WithContext(ctx)).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// GetOrderByAWB retrieves an order by its waybill; used by carrier webhooks
func (r *orderRepository) GetOrderByAWB(ctx context.Context, awb string) (*models.Order, error) {
	var order models.Order
	err := r.withHistory(r.db.WithContext(ctx)).
		Where("shipping_awb_code = ?", awb).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) withHistory(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items").
		Preload("TrackingHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		})
}

// SaveOrder writes the order columns and inserts tracking events that have not been stored yet.
// Items are owned by checkout and never rewritten here.
func (r *orderRepository) SaveOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order.UpdatedAt = time.Now()
		if err := tx.Omit(clause.Associations).Save(order).Error; err != nil {
			return fmt.Errorf("failed to save order: %w", translate(err))
		}

		var pending []*models.TrackingEvent
		for i := range order.TrackingHistory {
			event := &order.TrackingHistory[i]
			if event.ID != uuid.Nil {
				continue
			}
			event.ID = uuid.New()
			event.OrderID = order.ID
			pending = append(pending, event)
		}
		if len(pending) == 0 {
			return nil
		}

		// the dedup index makes replays of the same scan a no-op
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pending).Error; err != nil {
			return fmt.Errorf("failed to add tracking events: %w", err)
		}
		return nil
	})
}

// FindOrdersNeedingTracking lists orders with a waybill that are still moving
func (r *orderRepository) FindOrdersNeedingTracking(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("shipping_awb_code <> '' AND shipping_status IN ?", TrackedShippingStatuses).
		Order("shipping_last_update_at ASC NULLS FIRST").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find orders needing tracking: %w", err)
	}
	return ids, nil
}

// translate maps gorm errors onto the repository sentinels
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
