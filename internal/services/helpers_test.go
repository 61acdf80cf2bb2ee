package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
)

// ===== In-memory store =====

// memoryStore is an in-memory OrderRepository and ReturnRepository.
// Records are copied on the way in and out so tests see only what was saved.
type memoryStore struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*models.Order
	returns    map[uuid.UUID]*models.Return
	orderSaves int
}

var (
	_ repository.OrderRepository  = (*memoryStore)(nil)
	_ repository.ReturnRepository = (*memoryStore)(nil)
)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:  make(map[uuid.UUID]*models.Order),
		returns: make(map[uuid.UUID]*models.Return),
	}
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	c.TrackingHistory = append([]models.TrackingEvent(nil), o.TrackingHistory...)
	return &c
}

func copyReturn(r *models.Return) *models.Return {
	c := *r
	c.Items = append([]models.ReturnItem(nil), r.Items...)
	return &c
}

func (s *memoryStore) putOrder(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = copyOrder(o)
}

func (s *memoryStore) putReturn(r *models.Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returns[r.ID] = copyReturn(r)
}

func (s *memoryStore) order(id uuid.UUID) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOrder(s.orders[id])
}

func (s *memoryStore) ret(id uuid.UUID) *models.Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyReturn(s.returns[id])
}

func (s *memoryStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *memoryStore) GetOrderByAWB(_ context.Context, awb string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Shipping.AWBCode == awb {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) SaveOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range order.TrackingHistory {
		if order.TrackingHistory[i].ID == uuid.Nil {
			order.TrackingHistory[i].ID = uuid.New()
		}
	}
	s.orders[order.ID] = copyOrder(order)
	s.orderSaves++
	return nil
}

func (s *memoryStore) FindOrdersNeedingTracking(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, o := range s.orders {
		if !o.Shipping.HasAWB() {
			continue
		}
		for _, status := range repository.TrackedShippingStatuses {
			if o.Shipping.Status == status {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *memoryStore) GetReturn(_ context.Context, id uuid.UUID) (*models.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.returns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyReturn(r), nil
}

func (s *memoryStore) GetReturnByAWB(_ context.Context, awb string) (*models.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.returns {
		if r.ShiprocketReturnAWB == awb {
			return copyReturn(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) FindActiveReturnByOrder(_ context.Context, orderID uuid.UUID) (*models.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.returns {
		if r.OrderID == orderID && !r.Status.IsTerminal() {
			return copyReturn(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) CreateReturn(_ context.Context, ret *models.Return) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.returns {
		if r.OrderID == ret.OrderID && !r.Status.IsTerminal() {
			return repository.ErrDuplicate
		}
	}
	ret.CreatedAt = time.Now()
	s.returns[ret.ID] = copyReturn(ret)
	return nil
}

func (s *memoryStore) SaveReturn(_ context.Context, ret *models.Return) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returns[ret.ID] = copyReturn(ret)
	return nil
}

// ===== Mock Logistics Client =====

type MockLogisticsClient struct {
	mock.Mock
}

var _ carriers.LogisticsClient = (*MockLogisticsClient)(nil)

func (m *MockLogisticsClient) CreateOrder(ctx context.Context, request carriers.CreateOrderRequest) (*carriers.CreateOrderResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.CreateOrderResponse), args.Error(1)
}

func (m *MockLogisticsClient) GetAvailableCouriers(ctx context.Context, request carriers.ServiceabilityRequest) ([]carriers.CourierQuote, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]carriers.CourierQuote), args.Error(1)
}

func (m *MockLogisticsClient) AssignAWB(ctx context.Context, request carriers.AssignAWBRequest) (*carriers.AssignAWBResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.AssignAWBResponse), args.Error(1)
}

func (m *MockLogisticsClient) GeneratePickup(ctx context.Context, shipmentID int64) (*carriers.PickupResponse, error) {
	args := m.Called(ctx, shipmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.PickupResponse), args.Error(1)
}

func (m *MockLogisticsClient) TrackByAWB(ctx context.Context, awb string) (*carriers.TrackingResponse, error) {
	args := m.Called(ctx, awb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.TrackingResponse), args.Error(1)
}

func (m *MockLogisticsClient) CancelShipment(ctx context.Context, awb string) (*carriers.CancelResponse, error) {
	args := m.Called(ctx, awb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.CancelResponse), args.Error(1)
}

func (m *MockLogisticsClient) CreateReturnOrder(ctx context.Context, request carriers.CreateReturnOrderRequest) (*carriers.CreateOrderResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.CreateOrderResponse), args.Error(1)
}

func (m *MockLogisticsClient) GenerateLabel(ctx context.Context, shipmentID int64) (*carriers.LabelResponse, error) {
	args := m.Called(ctx, shipmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carriers.LabelResponse), args.Error(1)
}

// ===== Mock Event Publisher =====

type MockEventPublisher struct {
	mock.Mock
}

var _ EventPublisher = (*MockEventPublisher)(nil)

func (m *MockEventPublisher) PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) error {
	args := m.Called(ctx, eventType, order)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishReturnEvent(ctx context.Context, eventType string, ret *models.Return) error {
	args := m.Called(ctx, eventType, ret)
	return args.Error(0)
}

// ===== Fixtures =====

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestOrder() *models.Order {
	id := uuid.New()
	return &models.Order{
		ID:            id,
		OrderNumber:   "ORD-1001",
		UserID:        "user-1",
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodPrepaid,
		TotalAmount:   2499,
		CustomerEmail: "asha@example.com",
		Items: []models.OrderItem{
			{ID: uuid.New(), OrderID: id, ProductID: "ring-1", SKU: "RING-GOLD-7", Name: "Gold Ring", UnitPrice: 1499, Quantity: 1},
			{ID: uuid.New(), OrderID: id, ProductID: "earring-2", Name: "Pearl Studs", UnitPrice: 500, Quantity: 2},
		},
		ShippingAddress: models.Address{
			FullName:     "Asha Rao Kumar",
			AddressLine1: "12 MG Road",
			City:         "Bengaluru",
			State:        "Karnataka",
			PostalCode:   "560001",
			Phone:        "+91 98765 43210",
			Country:      "India",
		},
		Shipping: models.ShippingInfo{Status: models.ShippingStatusPending},
	}
}

func newCreatedOrder() *models.Order {
	order := newTestOrder()
	order.Status = models.OrderStatusProcessing
	order.Shipping.ShipmentID = 5550001
	order.Shipping.ShiprocketOrderID = 7770001
	order.Shipping.Status = models.ShippingStatusProcessing
	return order
}

func newShippedOrder(awb string) *models.Order {
	order := newCreatedOrder()
	order.Status = models.OrderStatusShipped
	order.Shipping.AWBCode = awb
	order.Shipping.Courier = "Delhivery Surface"
	order.Shipping.Status = models.ShippingStatusShipped
	return order
}

func testQuotes() []carriers.CourierQuote {
	return []carriers.CourierQuote{
		{CourierCompanyID: 10, CourierName: "Delhivery Surface", Rate: 120, IsSurface: true, FreightCharge: 10},
		{CourierCompanyID: 11, CourierName: "Ekart Surface", Rate: 90, IsSurface: true, FreightCharge: 0},
		{CourierCompanyID: 12, CourierName: "Bluedart Air", Rate: 150, IsSurface: false, FreightCharge: 20},
	}
}

var testSettings = ShipmentSettings{
	PickupLocation: "Primary",
	PickupPincode:  "400001",
}
