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

// ReturnService drives the reverse-shipment state machine
type ReturnService interface {
	GetReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, error)
	CreateReturn(ctx context.Context, input CreateReturnInput) (*ReturnOutcome, error)
	RetryReturnShipment(ctx context.Context, returnID uuid.UUID) (*ReturnOutcome, error)
	UpdateReturnStatus(ctx context.Context, returnID uuid.UUID, status models.ReturnStatus) (*models.Return, error)
	MarkRefundComplete(ctx context.Context, returnID uuid.UUID) (*models.Return, error)
}

// CreateReturnInput is a customer's return request
type CreateReturnInput struct {
	OrderID       uuid.UUID
	UserID        string
	Reason        string
	Items         []ReturnItemInput
	RefundDetails models.RefundDetails
}

// ReturnItemInput is one product line being returned
type ReturnItemInput struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Reason    string `json:"reason"`
}

// Stages of the best-effort return shipment phase
const (
	ReturnStageCreateOrder = "create_return_order"
	ReturnStageServiceable = "courier_serviceability"
	ReturnStageSelection   = "courier_selection"
	ReturnStageAssignAWB   = "assign_awb"
	ReturnStagePersist     = "persist"
)

// ReturnShipmentOutcome is the secondary result of a return request.
// Scheduled is false when the carrier phase failed; Stage names where it stopped.
type ReturnShipmentOutcome struct {
	Scheduled bool   `json:"scheduled"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// ReturnOutcome pairs the persisted return with the carrier phase outcome
type ReturnOutcome struct {
	Return   *models.Return        `json:"return"`
	Shipment ReturnShipmentOutcome `json:"shipment"`
}

// ReturnSettings locate the warehouse receiving returns
type ReturnSettings struct {
	Warehouse  carriers.Party
	Dimensions carriers.Dimensions
}

// ReturnOrchestrator implements ReturnService
type ReturnOrchestrator struct {
	orders    repository.OrderRepository
	returns   repository.ReturnRepository
	client    carriers.LogisticsClient
	publisher EventPublisher
	settings  ReturnSettings
	logger    *logrus.Entry
}

var _ ReturnService = (*ReturnOrchestrator)(nil)

// NewReturnOrchestrator creates a new return orchestrator. publisher may be nil.
func NewReturnOrchestrator(
	orders repository.OrderRepository,
	returns repository.ReturnRepository,
	client carriers.LogisticsClient,
	publisher EventPublisher,
	settings ReturnSettings,
	logger *logrus.Logger,
) *ReturnOrchestrator {
	if settings.Dimensions == (carriers.Dimensions{}) {
		settings.Dimensions = DefaultDimensions
	}
	return &ReturnOrchestrator{
		orders:    orders,
		returns:   returns,
		client:    client,
		publisher: publisher,
		settings:  settings,
		logger:    logger.WithField("component", "return_orchestrator"),
	}
}

// GetReturn loads a return with its items
func (s *ReturnOrchestrator) GetReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	return loadReturn(ctx, s.returns, returnID)
}

// CreateReturn persists the return as requested, then tries to book the
// reverse pickup. A carrier failure never undoes the request.
func (s *ReturnOrchestrator) CreateReturn(ctx context.Context, input CreateReturnInput) (*ReturnOutcome, error) {
	if violations := validateReturnItems(input.Items); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	order, err := loadOrder(ctx, s.orders, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.UserID != "" && order.UserID != "" && input.UserID != order.UserID {
		return nil, &NotFoundError{Resource: "order", ID: input.OrderID.String()}
	}
	if !isReturnable(order) {
		return nil, &PreconditionError{Reason: fmt.Sprintf("order is %s; only delivered orders can be returned", order.Status)}
	}
	if violations := validateReturnAgainstOrder(input.Items, order); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	existing, err := s.returns.FindActiveReturnByOrder(ctx, order.ID)
	switch {
	case err == nil:
		return nil, &AlreadyExistsError{Resource: "return", ID: existing.ID.String()}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check existing returns: %w", err)
	}

	ret := &models.Return{
		ID:            uuid.New(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		Reason:        input.Reason,
		Status:        models.ReturnStatusRequested,
		RefundDetails: input.RefundDetails,
	}
	for _, item := range input.Items {
		ret.Items = append(ret.Items, models.ReturnItem{
			ID:        uuid.New(),
			ReturnID:  ret.ID,
			ProductID: item.ProductID,
			Name:      orderItemName(order, item.ProductID),
			Quantity:  item.Quantity,
			Reason:    item.Reason,
		})
	}

	if err := s.returns.CreateReturn(ctx, ret); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &AlreadyExistsError{Resource: "return", ID: order.ID.String()}
		}
		return nil, fmt.Errorf("failed to create return: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"return_id": ret.ID,
		"order_id":  order.ID,
	}).Info("Return requested")
	publishReturn(ctx, s.publisher, s.logger, events.ReturnRequested, ret)

	outcome := s.scheduleReturnShipment(ctx, ret, order)
	return &ReturnOutcome{Return: ret, Shipment: outcome}, nil
}

// RetryReturnShipment re-runs the carrier phase for a return still in requested
func (s *ReturnOrchestrator) RetryReturnShipment(ctx context.Context, returnID uuid.UUID) (*ReturnOutcome, error) {
	ret, err := loadReturn(ctx, s.returns, returnID)
	if err != nil {
		return nil, err
	}
	if ret.Status != models.ReturnStatusRequested {
		return nil, &PreconditionError{Reason: fmt.Sprintf("return is %s; shipment can only be retried while requested", ret.Status)}
	}

	order, err := loadOrder(ctx, s.orders, ret.OrderID)
	if err != nil {
		return nil, err
	}

	outcome := s.scheduleReturnShipment(ctx, ret, order)
	return &ReturnOutcome{Return: ret, Shipment: outcome}, nil
}

// scheduleReturnShipment books the reverse pickup. Failures are recorded on the
// return and reported in the outcome, never returned as errors.
func (s *ReturnOrchestrator) scheduleReturnShipment(ctx context.Context, ret *models.Return, order *models.Order) ReturnShipmentOutcome {
	log := s.logger.WithFields(logrus.Fields{"return_id": ret.ID, "order_id": order.ID})

	fail := func(stage string, err error) ReturnShipmentOutcome {
		log.WithError(err).WithField("stage", stage).Warn("Return shipment not scheduled, staff follow-up needed")
		metrics.RecordReturnShipment(metrics.OutcomeFailure)

		ret.ShipmentError = fmt.Sprintf("%s: %v", stage, err)
		if saveErr := s.returns.SaveReturn(ctx, ret); saveErr != nil {
			log.WithError(saveErr).Error("Failed to record return shipment error")
		}
		return ReturnShipmentOutcome{Stage: stage, Error: err.Error(), Err: err}
	}

	returnedItems := returnedOrderItems(ret, order)
	weight := ComputeWeight(returnedItems)

	if ret.ShiprocketReturnShipmentID == 0 {
		resp, err := s.client.CreateReturnOrder(ctx, s.buildReturnOrderRequest(ret, order, returnedItems, weight))
		if err != nil {
			return fail(ReturnStageCreateOrder, newProviderError("create return order", err))
		}
		if resp.ShipmentID == 0 {
			return fail(ReturnStageCreateOrder, &ProviderError{
				Operation:  "create return order",
				StatusCode: resp.StatusCode,
				Message:    "no shipment id returned",
			})
		}
		ret.ShiprocketReturnID = resp.OrderID
		ret.ShiprocketReturnShipmentID = resp.ShipmentID
	}

	quotes, err := s.client.GetAvailableCouriers(ctx, carriers.ServiceabilityRequest{
		PickupPincode:   strings.TrimSpace(order.ShippingAddress.PostalCode),
		DeliveryPincode: s.settings.Warehouse.Pincode,
		Weight:          weight,
		IsReturn:        true,
	})
	if err != nil {
		return fail(ReturnStageServiceable, newProviderError("courier serviceability", err))
	}

	courier, err := SelectCourier(quotes)
	if err != nil {
		return fail(ReturnStageSelection, err)
	}

	awb, err := s.client.AssignAWB(ctx, carriers.AssignAWBRequest{
		ShipmentID: ret.ShiprocketReturnShipmentID,
		CourierID:  courier.CourierCompanyID,
		IsReturn:   true,
	})
	if err != nil {
		return fail(ReturnStageAssignAWB, newProviderError("assign awb", err))
	}

	courierName := awb.CourierName
	if courierName == "" {
		courierName = courier.CourierName
	}
	ret.ShiprocketReturnAWB = awb.AWBCode
	ret.CourierName = courierName
	ret.EstimatedPickupDate = awb.PickupScheduledDate
	ret.ShipmentError = ""
	ret.Status = models.ReturnStatusPickupScheduled

	if err := s.returns.SaveReturn(ctx, ret); err != nil {
		log.WithError(err).Error("Failed to save scheduled return shipment")
		metrics.RecordReturnShipment(metrics.OutcomeFailure)
		return ReturnShipmentOutcome{Stage: ReturnStagePersist, Error: err.Error(), Err: err}
	}

	metrics.RecordReturnShipment(metrics.OutcomeSuccess)
	log.WithFields(logrus.Fields{"awb": awb.AWBCode, "courier": courierName}).Info("Return pickup scheduled")
	publishReturn(ctx, s.publisher, s.logger, events.ReturnPickupScheduled, ret)
	return ReturnShipmentOutcome{Scheduled: true}
}

func (s *ReturnOrchestrator) buildReturnOrderRequest(ret *models.Return, order *models.Order, items []models.OrderItem, weight float64) carriers.CreateReturnOrderRequest {
	addr := order.ShippingAddress
	phone, _ := carriers.NormalizePhone(addr.Phone)

	lines := make([]carriers.OrderItem, 0, len(items))
	subTotal := 0.0
	for _, item := range items {
		sku := item.SKU
		if sku == "" {
			sku = item.ProductID
		}
		lines = append(lines, carriers.OrderItem{
			Name:         item.Name,
			SKU:          sku,
			Units:        item.Quantity,
			SellingPrice: item.UnitPrice,
			QCEnable:     true,
		})
		subTotal += item.UnitPrice * float64(item.Quantity)
	}

	return carriers.CreateReturnOrderRequest{
		OrderID:   "R-" + ret.ID.String(),
		OrderDate: ret.CreatedAt,
		Pickup: carriers.Party{
			Name:     addr.FullName,
			Address1: addr.AddressLine1,
			Address2: addr.AddressLine2,
			City:     addr.City,
			State:    addr.State,
			Country:  addr.Country,
			Pincode:  strings.TrimSpace(addr.PostalCode),
			Email:    order.CustomerEmail,
			Phone:    phone,
		},
		Shipping:      s.settings.Warehouse,
		Items:         lines,
		PaymentMethod: carriers.PaymentMethodPrepaid,
		SubTotal:      subTotal,
		Dimensions:    s.settings.Dimensions,
		Weight:        weight,
	}
}

// UpdateReturnStatus is the staff transition along the return table.
// completed is reached only through MarkRefundComplete.
func (s *ReturnOrchestrator) UpdateReturnStatus(ctx context.Context, returnID uuid.UUID, status models.ReturnStatus) (*models.Return, error) {
	if _, known := models.ValidReturnTransitions[status]; !known {
		return nil, &ValidationError{Violations: []Violation{{Field: "status", Message: fmt.Sprintf("unknown return status %q", status)}}}
	}
	if status == models.ReturnStatusCompleted {
		return nil, &PreconditionError{Reason: "returns are completed by marking the refund complete"}
	}

	ret, err := loadReturn(ctx, s.returns, returnID)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateReturnStatusTransition(ret.Status, status); err != nil {
		return nil, &PreconditionError{Reason: err.Error()}
	}

	previous := ret.Status
	ret.Status = status
	if err := s.returns.SaveReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("failed to save return: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"return_id": ret.ID,
		"from":      previous,
		"to":        status,
	}).Info("Return status updated")
	return ret, nil
}

// MarkRefundComplete closes an eligible return and flags the refund as paid.
// It is one-way.
func (s *ReturnOrchestrator) MarkRefundComplete(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	ret, err := loadReturn(ctx, s.returns, returnID)
	if err != nil {
		return nil, err
	}
	if ret.RefundSucceeded {
		return nil, &PreconditionError{Reason: "refund already completed for this return"}
	}
	if ret.Status != models.ReturnStatusReturnedToSeller && ret.Status != models.ReturnStatusReceived {
		return nil, &PreconditionError{Reason: fmt.Sprintf("return is %s; refund requires returned_to_seller or received", ret.Status)}
	}

	now := time.Now()
	ret.RefundSucceeded = true
	ret.RefundProcessedAt = &now
	ret.Status = models.ReturnStatusCompleted

	if err := s.returns.SaveReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("failed to save return: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{"return_id": ret.ID, "order_id": ret.OrderID})
	if order, err := loadOrder(ctx, s.orders, ret.OrderID); err != nil {
		log.WithError(err).Error("Refund recorded but order could not be loaded")
	} else {
		order.Status = models.OrderStatusRefunded
		if err := s.orders.SaveOrder(ctx, order); err != nil {
			log.WithError(err).Error("Refund recorded but order status was not updated")
		}
	}

	log.Info("Refund marked complete")
	publishReturn(ctx, s.publisher, s.logger, events.RefundCompleted, ret)
	return ret, nil
}

// isReturnable accepts delivered orders, and refunded ones whose parcel was
// delivered so a later return can follow a completed one.
func isReturnable(order *models.Order) bool {
	switch order.Status {
	case models.OrderStatusDelivered:
		return true
	case models.OrderStatusRefunded:
		return order.Shipping.Status == models.ShippingStatusDelivered
	default:
		return false
	}
}

func loadReturn(ctx context.Context, returns repository.ReturnRepository, returnID uuid.UUID) (*models.Return, error) {
	ret, err := returns.GetReturn(ctx, returnID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "return", ID: returnID.String()}
		}
		return nil, fmt.Errorf("failed to load return: %w", err)
	}
	return ret, nil
}

func validateReturnItems(items []ReturnItemInput) []Violation {
	if len(items) == 0 {
		return []Violation{{Field: "items", Message: "must not be empty"}}
	}
	var violations []Violation
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			violations = append(violations, Violation{Field: fmt.Sprintf("items[%d].productId", i), Message: "is required"})
		}
		if item.Quantity <= 0 {
			violations = append(violations, Violation{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be positive"})
		}
	}
	return violations
}

func validateReturnAgainstOrder(items []ReturnItemInput, order *models.Order) []Violation {
	ordered := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		ordered[item.ProductID] += item.Quantity
	}

	requested := make(map[string]int, len(items))
	for _, item := range items {
		requested[item.ProductID] += item.Quantity
	}

	var violations []Violation
	for i, item := range items {
		qty, ok := ordered[item.ProductID]
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case !ok:
			violations = append(violations, Violation{Field: field, Message: fmt.Sprintf("product %s is not part of this order", item.ProductID)})
		case requested[item.ProductID] > qty:
			violations = append(violations, Violation{Field: field, Message: fmt.Sprintf("return quantity exceeds ordered quantity %d", qty)})
		}
	}
	return violations
}

// returnedOrderItems maps return lines back onto order lines for weight and pricing
func returnedOrderItems(ret *models.Return, order *models.Order) []models.OrderItem {
	byProduct := make(map[string]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byProduct[item.ProductID] = item
	}

	items := make([]models.OrderItem, 0, len(ret.Items))
	for _, r := range ret.Items {
		item, ok := byProduct[r.ProductID]
		if !ok {
			item = models.OrderItem{ProductID: r.ProductID, Name: r.Name}
		}
		item.Quantity = r.Quantity
		items = append(items, item)
	}
	return items
}

func orderItemName(order *models.Order, productID string) string {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return item.Name
		}
	}
	return ""
}
