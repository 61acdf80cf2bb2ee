package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/events"
	"fulfillment-service/internal/metrics"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
)

// ShipmentService drives the forward-shipment state machine of an order
type ShipmentService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	CreateShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ProcessShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	AutomateShipping(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	CancelShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GenerateLabel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ShipmentSettings are the warehouse-side constants of every outbound parcel
type ShipmentSettings struct {
	PickupLocation    string
	PickupPincode     string
	Dimensions        carriers.Dimensions
	TrackingURLFormat string
}

// DefaultDimensions is the standard jewelry box in centimetres
var DefaultDimensions = carriers.Dimensions{Length: 15, Breadth: 10, Height: 5}

// DefaultTrackingURLFormat takes the AWB
const DefaultTrackingURLFormat = "https://shiprocket.co/tracking/%s"

// ShipmentOrchestrator implements ShipmentService
type ShipmentOrchestrator struct {
	orders    repository.OrderRepository
	client    carriers.LogisticsClient
	publisher EventPublisher
	settings  ShipmentSettings
	logger    *logrus.Entry
}

var _ ShipmentService = (*ShipmentOrchestrator)(nil)

// NewShipmentOrchestrator creates a new shipment orchestrator. publisher may be nil.
func NewShipmentOrchestrator(
	orders repository.OrderRepository,
	client carriers.LogisticsClient,
	publisher EventPublisher,
	settings ShipmentSettings,
	logger *logrus.Logger,
) *ShipmentOrchestrator {
	if settings.Dimensions == (carriers.Dimensions{}) {
		settings.Dimensions = DefaultDimensions
	}
	if settings.TrackingURLFormat == "" {
		settings.TrackingURLFormat = DefaultTrackingURLFormat
	}
	return &ShipmentOrchestrator{
		orders:    orders,
		client:    client,
		publisher: publisher,
		settings:  settings,
		logger:    logger.WithField("component", "shipment_orchestrator"),
	}
}

// GetOrder loads an order with its shipping sub-record
func (s *ShipmentOrchestrator) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return loadOrder(ctx, s.orders, orderID)
}

// CreateShipment registers the order with the carrier. It fails fast when a
// shipment id is already recorded and never calls the carrier with invalid data.
func (s *ShipmentOrchestrator) CreateShipment(ctx context.Context, orderID uuid.UUID) (order *models.Order, err error) {
	defer func() { metrics.RecordShipmentStage("create", err) }()

	order, err = loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if order.Shipping.HasShipment() {
		return nil, &AlreadyExistsError{Resource: "shipment", ID: order.ID.String()}
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	log := s.logger.WithField("order_id", order.ID)
	log.Info("Creating carrier shipment")

	resp, err := s.client.CreateOrder(ctx, s.buildCreateOrderRequest(order))
	if err != nil {
		log.WithError(err).Error("Carrier rejected shipment creation")
		return nil, newProviderError("create order", err)
	}
	if resp.StatusCode != carriers.OrderStatusCodeNew || resp.ShipmentID == 0 {
		log.WithField("status_code", resp.StatusCode).Error("Unexpected carrier status for new order")
		return nil, &ProviderError{
			Operation:  "create order",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected order status %q", resp.Status),
		}
	}

	order.Shipping.ShipmentID = resp.ShipmentID
	order.Shipping.ShiprocketOrderID = resp.OrderID
	order.Shipping.Status = models.ShippingStatusProcessing
	order.Shipping.ErrorMessage = ""
	order.Status = models.OrderStatusProcessing

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	log.WithField("shipment_id", resp.ShipmentID).Info("Carrier shipment created")
	publishOrder(ctx, s.publisher, s.logger, events.ShipmentCreated, order)
	return order, nil
}

func (s *ShipmentOrchestrator) buildCreateOrderRequest(order *models.Order) carriers.CreateOrderRequest {
	addr := order.ShippingAddress
	firstName, lastName := carriers.SplitName(addr.FullName)
	phone, _ := carriers.NormalizePhone(addr.Phone)

	items := make([]carriers.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		sku := item.SKU
		if sku == "" {
			sku = item.ProductID
		}
		items = append(items, carriers.OrderItem{
			Name:         item.Name,
			SKU:          sku,
			Units:        item.Quantity,
			SellingPrice: item.UnitPrice,
		})
	}

	return carriers.CreateOrderRequest{
		OrderID:          carrierOrderRef(order),
		OrderDate:        order.CreatedAt,
		PickupLocation:   s.settings.PickupLocation,
		BillingFirstName: firstName,
		BillingLastName:  lastName,
		Address1:         addr.AddressLine1,
		Address2:         addr.AddressLine2,
		City:             addr.City,
		State:            addr.State,
		Pincode:          strings.TrimSpace(addr.PostalCode),
		Country:          addr.Country,
		Email:            order.CustomerEmail,
		Phone:            phone,
		Items:            items,
		PaymentMethod:    carrierPaymentMethod(order.PaymentMethod),
		SubTotal:         order.TotalAmount,
		Dimensions:       s.settings.Dimensions,
		Weight:           ComputeWeight(order.Items),
	}
}

// ProcessShipment selects a courier, assigns the AWB and requests pickup.
// A pickup failure is logged only; the AWB is the proof of shipment.
func (s *ShipmentOrchestrator) ProcessShipment(ctx context.Context, orderID uuid.UUID) (order *models.Order, err error) {
	defer func() { metrics.RecordShipmentStage("process", err) }()

	order, err = loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Shipping.HasShipment() {
		return nil, &PreconditionError{Reason: "shipment has not been created for this order"}
	}
	if order.Shipping.HasAWB() {
		return nil, &AlreadyExistsError{Resource: "awb", ID: order.ID.String()}
	}
	if order.Shipping.Status.IsTerminal() {
		return nil, &PreconditionError{Reason: fmt.Sprintf("shipment is %s", order.Shipping.Status)}
	}

	log := s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"shipment_id": order.Shipping.ShipmentID,
	})

	codAmount := 0.0
	if order.PaymentMethod == models.PaymentMethodCOD {
		codAmount = order.TotalAmount
	}

	quotes, err := s.client.GetAvailableCouriers(ctx, carriers.ServiceabilityRequest{
		PickupPincode:   s.settings.PickupPincode,
		DeliveryPincode: strings.TrimSpace(order.ShippingAddress.PostalCode),
		Weight:          ComputeWeight(order.Items),
		CODAmount:       codAmount,
	})
	if err != nil {
		log.WithError(err).Error("Failed to quote couriers")
		return nil, newProviderError("courier serviceability", err)
	}

	courier, err := SelectCourier(quotes)
	if err != nil {
		log.Warn("No couriers available, parking shipment")
		s.park(ctx, order, models.ShippingStatusPendingCourier, err.Error())
		return nil, &ProviderError{Operation: "courier selection", Message: err.Error(), Err: err}
	}

	log = log.WithFields(logrus.Fields{
		"courier":    courier.CourierName,
		"courier_id": courier.CourierCompanyID,
		"rate":       courier.Rate,
	})

	awb, err := s.client.AssignAWB(ctx, carriers.AssignAWBRequest{
		ShipmentID: order.Shipping.ShipmentID,
		CourierID:  courier.CourierCompanyID,
	})
	if err != nil {
		log.WithError(err).Error("AWB assignment failed")
		if isInsufficientBalance(err) {
			s.park(ctx, order, models.ShippingStatusPendingBalance, err.Error())
		}
		return nil, newProviderError("assign awb", err)
	}

	courierName := awb.CourierName
	if courierName == "" {
		courierName = courier.CourierName
	}

	order.Shipping.AWBCode = awb.AWBCode
	order.Shipping.Courier = courierName
	order.Shipping.CourierID = courier.CourierCompanyID
	order.Shipping.TrackingURL = fmt.Sprintf(s.settings.TrackingURLFormat, awb.AWBCode)
	order.Shipping.PickupScheduledAt = awb.PickupScheduledDate
	order.Shipping.Status = models.ShippingStatusShipped
	order.Shipping.ErrorMessage = ""
	now := time.Now()
	order.Shipping.LastUpdateAt = &now
	order.Status = models.OrderStatusShipped

	pickup, err := s.client.GeneratePickup(ctx, order.Shipping.ShipmentID)
	switch {
	case err != nil:
		log.WithError(err).Warn("Pickup generation failed, AWB kept")
	case pickup != nil && pickup.PickupScheduledDate != nil:
		order.Shipping.PickupScheduledAt = pickup.PickupScheduledDate
	}

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	log.WithField("awb", awb.AWBCode).Info("Shipment processed")
	publishOrder(ctx, s.publisher, s.logger, events.ShipmentShipped, order)
	return order, nil
}

// park records a side-state that a later ProcessShipment call retries from
func (s *ShipmentOrchestrator) park(ctx context.Context, order *models.Order, status models.ShippingStatus, reason string) {
	if !models.CanMoveShippingStatus(order.Shipping.Status, status) {
		s.logger.WithFields(logrus.Fields{
			"order_id": order.ID,
			"from":     order.Shipping.Status,
			"to":       status,
		}).Warn("Shipment side-state not allowed from current status")
		return
	}
	order.Shipping.Status = status
	order.Shipping.ErrorMessage = reason
	if err := s.orders.SaveOrder(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to record shipment side-state")
		return
	}
	publishOrder(ctx, s.publisher, s.logger, events.ShipmentFailed, order)
}

// AutomateShipping creates then processes the shipment. It is the entry point
// for payment completion.
func (s *ShipmentOrchestrator) AutomateShipping(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if _, err := s.CreateShipment(ctx, orderID); err != nil {
		return nil, err
	}
	return s.ProcessShipment(ctx, orderID)
}

// CancelShipment cancels the waybill with the carrier and marks the order cancelled
func (s *ShipmentOrchestrator) CancelShipment(ctx context.Context, orderID uuid.UUID) (order *models.Order, err error) {
	defer func() { metrics.RecordShipmentStage("cancel", err) }()

	order, err = loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Shipping.HasAWB() {
		return nil, &PreconditionError{Reason: "shipment has no AWB to cancel"}
	}
	if order.Shipping.Status.IsTerminal() {
		return nil, &PreconditionError{Reason: fmt.Sprintf("shipment is already %s", order.Shipping.Status)}
	}

	if _, err := s.client.CancelShipment(ctx, order.Shipping.AWBCode); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Carrier cancellation failed")
		return nil, newProviderError("cancel shipment", err)
	}

	order.Shipping.Status = models.ShippingStatusCancelled
	order.Status = models.OrderStatusCancelled
	now := time.Now()
	order.Shipping.LastUpdateAt = &now

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"order_id": order.ID, "awb": order.Shipping.AWBCode}).Info("Shipment cancelled")
	publishOrder(ctx, s.publisher, s.logger, events.ShipmentCancelled, order)
	return order, nil
}

// GenerateLabel fetches the label and manifest for the shipment
func (s *ShipmentOrchestrator) GenerateLabel(ctx context.Context, orderID uuid.UUID) (order *models.Order, err error) {
	defer func() { metrics.RecordShipmentStage("label", err) }()

	order, err = loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Shipping.HasShipment() {
		return nil, &PreconditionError{Reason: "shipment has not been created for this order"}
	}

	label, err := s.client.GenerateLabel(ctx, order.Shipping.ShipmentID)
	if err != nil {
		return nil, newProviderError("generate label", err)
	}
	if label.LabelCreated != carriers.LabelCreated || label.LabelURL == "" {
		return nil, &ProviderError{Operation: "generate label", Message: "label was not created"}
	}

	order.Shipping.LabelURL = label.LabelURL
	if label.ManifestURL != "" {
		order.Shipping.ManifestURL = label.ManifestURL
	}

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}
	return order, nil
}

func loadOrder(ctx context.Context, orders repository.OrderRepository, orderID uuid.UUID) (*models.Order, error) {
	order, err := orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: orderID.String()}
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

func carrierOrderRef(order *models.Order) string {
	if order.OrderNumber != "" {
		return order.OrderNumber
	}
	return order.ID.String()
}

func carrierPaymentMethod(method models.PaymentMethod) string {
	if method == models.PaymentMethodCOD {
		return carriers.PaymentMethodCOD
	}
	return carriers.PaymentMethodPrepaid
}

func isInsufficientBalance(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "balance")
}
