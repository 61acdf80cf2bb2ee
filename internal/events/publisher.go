package events

import (
	"context"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/models"
)

// Fulfillment event types
const (
	ShipmentCreated       = "fulfillment.shipment_created"
	ShipmentShipped       = "fulfillment.shipment_shipped"
	ShipmentDelivered     = "fulfillment.shipment_delivered"
	ShipmentCancelled     = "fulfillment.shipment_cancelled"
	ShipmentFailed        = "fulfillment.shipment_failed"
	ReturnRequested       = "fulfillment.return_requested"
	ReturnPickupScheduled = "fulfillment.return_pickup_scheduled"
	RefundCompleted       = "fulfillment.refund_completed"
)

const (
	streamName    = "FULFILLMENT_EVENTS"
	streamSubject = "fulfillment.>"
)

// FulfillmentEvent represents a shipment or return lifecycle event
type FulfillmentEvent struct {
	events.BaseEvent
	OrderID        string `json:"orderId,omitempty"`
	OrderNumber    string `json:"orderNumber,omitempty"`
	ReturnID       string `json:"returnId,omitempty"`
	ShipmentID     int64  `json:"shipmentId,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
	Courier        string `json:"courier,omitempty"`
	Status         string `json:"status,omitempty"`
	OrderStatus    string `json:"orderStatus,omitempty"`
	CustomerEmail  string `json:"customerEmail,omitempty"`
	CustomerName   string `json:"customerName,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

func (e *FulfillmentEvent) GetSubject() string {
	return e.EventType
}

func (e *FulfillmentEvent) GetStream() string {
	return streamName
}

// Publisher wraps the shared events publisher for fulfillment events
type Publisher struct {
	publisher *events.Publisher
	storeID   string
	logger    *logrus.Entry
}

// NewPublisher connects to NATS and makes sure the fulfillment stream exists
func NewPublisher(natsURL, storeID string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "fulfillment-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := publisher.EnsureStream(ctx, streamName, []string{streamSubject}); err != nil {
		logger.WithError(err).Warn("Failed to ensure FULFILLMENT_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		storeID:   storeID,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishOrderEvent publishes a forward-shipment event for the order
func (p *Publisher) PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) error {
	event := &FulfillmentEvent{
		BaseEvent:      p.base(eventType),
		OrderID:        order.ID.String(),
		OrderNumber:    order.OrderNumber,
		ShipmentID:     order.Shipping.ShipmentID,
		TrackingNumber: order.Shipping.AWBCode,
		TrackingURL:    order.Shipping.TrackingURL,
		Courier:        order.Shipping.Courier,
		Status:         string(order.Shipping.Status),
		OrderStatus:    string(order.Status),
		CustomerEmail:  order.CustomerEmail,
		CustomerName:   order.ShippingAddress.FullName,
		ErrorMessage:   order.Shipping.ErrorMessage,
	}

	p.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"order_id":   event.OrderID,
	}).Debug("Publishing fulfillment event")

	return p.publisher.Publish(ctx, event)
}

// PublishReturnEvent publishes a reverse-shipment event for the return
func (p *Publisher) PublishReturnEvent(ctx context.Context, eventType string, ret *models.Return) error {
	event := &FulfillmentEvent{
		BaseEvent:      p.base(eventType),
		OrderID:        ret.OrderID.String(),
		ReturnID:       ret.ID.String(),
		ShipmentID:     ret.ShiprocketReturnShipmentID,
		TrackingNumber: ret.ShiprocketReturnAWB,
		Courier:        ret.CourierName,
		Status:         string(ret.Status),
		ErrorMessage:   ret.ShipmentError,
	}

	p.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"return_id":  event.ReturnID,
	}).Debug("Publishing fulfillment event")

	return p.publisher.Publish(ctx, event)
}

func (p *Publisher) base(eventType string) events.BaseEvent {
	return events.BaseEvent{
		EventType: eventType,
		TenantID:  p.storeID,
		Timestamp: time.Now().UTC(),
	}
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	p.publisher.Close()
}
