package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/events"
	"fulfillment-service/internal/models"
)

func newShipmentFixture() (*ShipmentOrchestrator, *memoryStore, *MockLogisticsClient) {
	store := newMemoryStore()
	client := new(MockLogisticsClient)
	orchestrator := NewShipmentOrchestrator(store, client, nil, testSettings, testLogger())
	return orchestrator, store, client
}

// ===== CreateShipment Tests =====

func TestCreateShipment_Success(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req carriers.CreateOrderRequest) bool {
		return req.OrderID == "ORD-1001" &&
			req.BillingFirstName == "Asha" &&
			req.BillingLastName == "Rao Kumar" &&
			req.Phone == "9876543210" &&
			req.Pincode == "560001" &&
			req.PickupLocation == "Primary" &&
			req.PaymentMethod == carriers.PaymentMethodPrepaid &&
			req.Weight == 0.5 &&
			req.Dimensions == DefaultDimensions &&
			len(req.Items) == 2 &&
			req.Items[1].SKU == "earring-2"
	})).Return(&carriers.CreateOrderResponse{
		OrderID:    7770001,
		ShipmentID: 5550001,
		StatusCode: carriers.OrderStatusCodeNew,
		Status:     "NEW",
	}, nil).Once()

	updated, err := orchestrator.CreateShipment(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(5550001), updated.Shipping.ShipmentID)
	assert.Equal(t, models.ShippingStatusProcessing, updated.Shipping.Status)
	assert.Equal(t, models.OrderStatusProcessing, updated.Status)

	saved := store.order(order.ID)
	assert.Equal(t, int64(5550001), saved.Shipping.ShipmentID)
	assert.Equal(t, int64(7770001), saved.Shipping.ShiprocketOrderID)
	assert.Equal(t, models.ShippingStatusProcessing, saved.Shipping.Status)
	assert.Equal(t, models.OrderStatusProcessing, saved.Status)
	client.AssertExpectations(t)
}

func TestCreateShipment_SecondCallIsRejectedWithoutCarrierCall(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.Anything).Return(&carriers.CreateOrderResponse{
		ShipmentID: 5550001,
		StatusCode: carriers.OrderStatusCodeNew,
	}, nil)

	_, err := orchestrator.CreateShipment(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = orchestrator.CreateShipment(context.Background(), order.ID)

	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "shipment", exists.Resource)
	client.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestCreateShipment_ValidationFailureSkipsCarrier(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	order.ShippingAddress.PostalCode = "5600"
	order.ShippingAddress.Phone = "12345"
	store.putOrder(order)

	_, err := orchestrator.CreateShipment(context.Background(), order.ID)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Violations, 2)
	client.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	assert.Equal(t, models.ShippingStatusPending, store.order(order.ID).Shipping.Status)
}

func TestCreateShipment_ProviderFailureLeavesOrderUntouched(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &carriers.APIError{Operation: "create order", StatusCode: 422, Message: "Invalid pincode"})

	_, err := orchestrator.CreateShipment(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 422, providerErr.StatusCode)
	assert.Equal(t, "Invalid pincode", providerErr.Message)

	saved := store.order(order.ID)
	assert.Zero(t, saved.Shipping.ShipmentID)
	assert.Equal(t, models.OrderStatusPending, saved.Status)
	assert.Zero(t, store.orderSaves)
}

func TestCreateShipment_UnexpectedStatusCode(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&carriers.CreateOrderResponse{ShipmentID: 1, StatusCode: 5, Status: "CANCELED"}, nil)

	_, err := orchestrator.CreateShipment(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Zero(t, store.order(order.ID).Shipping.ShipmentID)
}

func TestCreateShipment_UnknownOrder(t *testing.T) {
	orchestrator, _, client := newShipmentFixture()

	_, err := orchestrator.CreateShipment(context.Background(), uuid.New())

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "order", notFound.Resource)
	client.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateShipment_CODUsesCarrierCODMethod(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	order.PaymentMethod = models.PaymentMethodCOD
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req carriers.CreateOrderRequest) bool {
		return req.PaymentMethod == carriers.PaymentMethodCOD
	})).Return(&carriers.CreateOrderResponse{ShipmentID: 1, StatusCode: carriers.OrderStatusCodeNew}, nil)

	_, err := orchestrator.CreateShipment(context.Background(), order.ID)

	require.NoError(t, err)
	client.AssertExpectations(t)
}

// ===== ProcessShipment Tests =====

func TestProcessShipment_AssignsCheapestSurfaceCourier(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	store.putOrder(order)

	pickupAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	client.On("GetAvailableCouriers", mock.Anything, carriers.ServiceabilityRequest{
		PickupPincode:   "400001",
		DeliveryPincode: "560001",
		Weight:          0.5,
		CODAmount:       0,
	}).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, carriers.AssignAWBRequest{ShipmentID: 5550001, CourierID: 10}).
		Return(&carriers.AssignAWBResponse{AWBAssignStatus: 1, AWBCode: "AWB123", CourierName: "Delhivery Surface"}, nil)
	client.On("GeneratePickup", mock.Anything, int64(5550001)).
		Return(&carriers.PickupResponse{PickupStatus: 1, PickupScheduledDate: &pickupAt}, nil)

	updated, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, "AWB123", updated.Shipping.AWBCode)

	saved := store.order(order.ID)
	assert.Equal(t, "AWB123", saved.Shipping.AWBCode)
	assert.Equal(t, "Delhivery Surface", saved.Shipping.Courier)
	assert.Equal(t, 10, saved.Shipping.CourierID)
	assert.Equal(t, "https://shiprocket.co/tracking/AWB123", saved.Shipping.TrackingURL)
	assert.Equal(t, models.ShippingStatusShipped, saved.Shipping.Status)
	assert.Equal(t, models.OrderStatusShipped, saved.Status)
	require.NotNil(t, saved.Shipping.PickupScheduledAt)
	assert.True(t, pickupAt.Equal(*saved.Shipping.PickupScheduledAt))
	client.AssertExpectations(t)
}

func TestProcessShipment_QuotesWithCODAmount(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	order.PaymentMethod = models.PaymentMethodCOD
	store.putOrder(order)

	client.On("GetAvailableCouriers", mock.Anything, mock.MatchedBy(func(req carriers.ServiceabilityRequest) bool {
		return req.CODAmount == 2499
	})).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, mock.Anything).
		Return(&carriers.AssignAWBResponse{AWBAssignStatus: 1, AWBCode: "AWB9"}, nil)
	client.On("GeneratePickup", mock.Anything, mock.Anything).
		Return(&carriers.PickupResponse{PickupStatus: 1}, nil)

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestProcessShipment_PickupFailureKeepsAWB(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	store.putOrder(order)

	client.On("GetAvailableCouriers", mock.Anything, mock.Anything).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, mock.Anything).
		Return(&carriers.AssignAWBResponse{AWBAssignStatus: 1, AWBCode: "AWB777"}, nil)
	client.On("GeneratePickup", mock.Anything, mock.Anything).
		Return(nil, &carriers.APIError{Operation: "generate pickup", StatusCode: 400, Message: "Pickup already queued"})

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	require.NoError(t, err)
	saved := store.order(order.ID)
	assert.Equal(t, "AWB777", saved.Shipping.AWBCode)
	assert.Equal(t, models.ShippingStatusShipped, saved.Shipping.Status)
	assert.Equal(t, models.OrderStatusShipped, saved.Status)
}

func TestProcessShipment_NoCouriersParksShipment(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	store.putOrder(order)

	client.On("GetAvailableCouriers", mock.Anything, mock.Anything).Return([]carriers.CourierQuote{}, nil)

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.ErrorIs(t, err, ErrNoCouriers)

	saved := store.order(order.ID)
	assert.Equal(t, models.ShippingStatusPendingCourier, saved.Shipping.Status)
	assert.Equal(t, models.OrderStatusProcessing, saved.Status)
	assert.NotEmpty(t, saved.Shipping.ErrorMessage)
	client.AssertNotCalled(t, "AssignAWB", mock.Anything, mock.Anything)
}

func TestProcessShipment_InsufficientBalanceParksShipment(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	store.putOrder(order)

	client.On("GetAvailableCouriers", mock.Anything, mock.Anything).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, mock.Anything).
		Return(nil, &carriers.APIError{Operation: "assign awb", StatusCode: 400, Message: "Insufficient wallet balance"})

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	saved := store.order(order.ID)
	assert.Equal(t, models.ShippingStatusPendingBalance, saved.Shipping.Status)
	assert.Empty(t, saved.Shipping.AWBCode)
	client.AssertNotCalled(t, "GeneratePickup", mock.Anything, mock.Anything)
}

func TestProcessShipment_AWBFailureLeavesStatus(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	store.putOrder(order)

	client.On("GetAvailableCouriers", mock.Anything, mock.Anything).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, models.ShippingStatusProcessing, store.order(order.ID).Shipping.Status)
}

func TestProcessShipment_RequiresShipment(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	client.AssertNotCalled(t, "GetAvailableCouriers", mock.Anything, mock.Anything)
}

func TestProcessShipment_RejectsSecondAWB(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newShippedOrder("AWB1")
	store.putOrder(order)

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	client.AssertNotCalled(t, "AssignAWB", mock.Anything, mock.Anything)
}

func TestProcessShipment_PublishesShippedEvent(t *testing.T) {
	store := newMemoryStore()
	client := new(MockLogisticsClient)
	publisher := new(MockEventPublisher)
	orchestrator := NewShipmentOrchestrator(store, client, publisher, testSettings, testLogger())

	order := newCreatedOrder()
	store.putOrder(order)

	client.On("GetAvailableCouriers", mock.Anything, mock.Anything).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, mock.Anything).
		Return(&carriers.AssignAWBResponse{AWBAssignStatus: 1, AWBCode: "AWB5"}, nil)
	client.On("GeneratePickup", mock.Anything, mock.Anything).Return(&carriers.PickupResponse{PickupStatus: 1}, nil)
	publisher.On("PublishOrderEvent", mock.Anything, events.ShipmentShipped, mock.AnythingOfType("*models.Order")).
		Return(errors.New("nats down"))

	_, err := orchestrator.ProcessShipment(context.Background(), order.ID)

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

// ===== AutomateShipping Tests =====

func TestAutomateShipping_CreatesThenProcesses(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&carriers.CreateOrderResponse{ShipmentID: 42, OrderID: 43, StatusCode: carriers.OrderStatusCodeNew}, nil)
	client.On("GetAvailableCouriers", mock.Anything, mock.Anything).Return(testQuotes(), nil)
	client.On("AssignAWB", mock.Anything, carriers.AssignAWBRequest{ShipmentID: 42, CourierID: 10}).
		Return(&carriers.AssignAWBResponse{AWBAssignStatus: 1, AWBCode: "AWB42"}, nil)
	client.On("GeneratePickup", mock.Anything, int64(42)).Return(&carriers.PickupResponse{PickupStatus: 1}, nil)

	updated, err := orchestrator.AutomateShipping(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, "AWB42", updated.Shipping.AWBCode)
	assert.Equal(t, models.OrderStatusShipped, store.order(order.ID).Status)
	client.AssertExpectations(t)
}

func TestAutomateShipping_StopsOnCreateFailure(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newTestOrder()
	store.putOrder(order)

	client.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := orchestrator.AutomateShipping(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	client.AssertNotCalled(t, "GetAvailableCouriers", mock.Anything, mock.Anything)
}

// ===== CancelShipment Tests =====

func TestCancelShipment_Success(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newShippedOrder("AWB1")
	store.putOrder(order)

	client.On("CancelShipment", mock.Anything, "AWB1").Return(&carriers.CancelResponse{StatusCode: 200}, nil)

	_, err := orchestrator.CancelShipment(context.Background(), order.ID)

	require.NoError(t, err)
	saved := store.order(order.ID)
	assert.Equal(t, models.ShippingStatusCancelled, saved.Shipping.Status)
	assert.Equal(t, models.OrderStatusCancelled, saved.Status)
}

func TestCancelShipment_RequiresAWB(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newCreatedOrder()
	store.putOrder(order)

	_, err := orchestrator.CancelShipment(context.Background(), order.ID)

	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	client.AssertNotCalled(t, "CancelShipment", mock.Anything, mock.Anything)
}

func TestCancelShipment_DeliveredIsRejected(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newShippedOrder("AWB1")
	order.Shipping.Status = models.ShippingStatusDelivered
	order.Status = models.OrderStatusDelivered
	store.putOrder(order)

	_, err := orchestrator.CancelShipment(context.Background(), order.ID)

	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	client.AssertNotCalled(t, "CancelShipment", mock.Anything, mock.Anything)
}

func TestCancelShipment_ProviderFailure(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newShippedOrder("AWB1")
	store.putOrder(order)

	client.On("CancelShipment", mock.Anything, "AWB1").
		Return(nil, &carriers.APIError{Operation: "cancel shipment", StatusCode: 400, Message: "already picked up"})

	_, err := orchestrator.CancelShipment(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, models.ShippingStatusShipped, store.order(order.ID).Shipping.Status)
}

// ===== GenerateLabel Tests =====

func TestGenerateLabel_StoresURLs(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newShippedOrder("AWB1")
	store.putOrder(order)

	client.On("GenerateLabel", mock.Anything, int64(5550001)).Return(&carriers.LabelResponse{
		LabelCreated: 1,
		LabelURL:     "https://cdn.example.com/label.pdf",
		ManifestURL:  "https://cdn.example.com/manifest.pdf",
	}, nil)

	_, err := orchestrator.GenerateLabel(context.Background(), order.ID)

	require.NoError(t, err)
	saved := store.order(order.ID)
	assert.Equal(t, "https://cdn.example.com/label.pdf", saved.Shipping.LabelURL)
	assert.Equal(t, "https://cdn.example.com/manifest.pdf", saved.Shipping.ManifestURL)
}

func TestGenerateLabel_NotCreated(t *testing.T) {
	orchestrator, store, client := newShipmentFixture()
	order := newShippedOrder("AWB1")
	store.putOrder(order)

	client.On("GenerateLabel", mock.Anything, mock.Anything).Return(&carriers.LabelResponse{LabelCreated: 0}, nil)

	_, err := orchestrator.GenerateLabel(context.Background(), order.ID)

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Empty(t, store.order(order.ID).Shipping.LabelURL)
}
