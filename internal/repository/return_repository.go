package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment-service/internal/models"
)

type returnRepository struct {
	db *gorm.DB
}

// NewReturnRepository creates a new return repository
func NewReturnRepository(db *gorm.DB) ReturnRepository {
	return &returnRepository{db: db}
}

// GetReturn retrieves a return by ID with its items
func (r *returnRepository) GetReturn(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&ret, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ret, nil
}

// GetReturnByAWB retrieves a return by its reverse waybill
func (r *returnRepository) GetReturnByAWB(ctx context.Context, awb string) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("shiprocket_return_awb = ?", awb).
		First(&ret).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ret, nil
}

// FindActiveReturnByOrder returns the non-terminal return of an order, if any
func (r *returnRepository) FindActiveReturnByOrder(ctx context.Context, orderID uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status NOT IN ?", orderID, models.TerminalReturnStatuses).
		Order("created_at DESC").
		First(&ret).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ret, nil
}

// CreateReturn creates a return together with its items
func (r *returnRepository) CreateReturn(ctx context.Context, ret *models.Return) error {
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	for i := range ret.Items {
		if ret.Items[i].ID == uuid.Nil {
			ret.Items[i].ID = uuid.New()
		}
		ret.Items[i].ReturnID = ret.ID
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ret).Error; err != nil {
			return fmt.Errorf("failed to create return: %w", translate(err))
		}
		return nil
	})
}

// SaveReturn writes back the return columns
func (r *returnRepository) SaveReturn(ctx context.Context, ret *models.Return) error {
	ret.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(ret).Error; err != nil {
		return fmt.Errorf("failed to save return: %w", translate(err))
	}
	return nil
}
