package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fulfillment-service/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// OrderRepository is the order persistence the fulfillment core reads and writes.
// SaveOrder writes back a record previously loaded with GetOrder as one unit.
type OrderRepository interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByAWB(ctx context.Context, awb string) (*models.Order, error)
	SaveOrder(ctx context.Context, order *models.Order) error
	FindOrdersNeedingTracking(ctx context.Context) ([]uuid.UUID, error)
}

// ReturnRepository is the return persistence
type ReturnRepository interface {
	GetReturn(ctx context.Context, id uuid.UUID) (*models.Return, error)
	GetReturnByAWB(ctx context.Context, awb string) (*models.Return, error)
	FindActiveReturnByOrder(ctx context.Context, orderID uuid.UUID) (*models.Return, error)
	CreateReturn(ctx context.Context, ret *models.Return) error
	SaveReturn(ctx context.Context, ret *models.Return) error
}

// TrackedShippingStatuses are the statuses the bulk tracking refresh polls
var TrackedShippingStatuses = []models.ShippingStatus{
	models.ShippingStatusProcessing,
	models.ShippingStatusShipped,
}
