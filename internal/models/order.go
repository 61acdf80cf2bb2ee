package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the customer-facing order lifecycle
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// ShippingStatus is the forward-shipment lifecycle kept on Order.Shipping
type ShippingStatus string

const (
	ShippingStatusPending        ShippingStatus = "pending"
	ShippingStatusProcessing     ShippingStatus = "processing"
	ShippingStatusShipped        ShippingStatus = "shipped"
	ShippingStatusDelivered      ShippingStatus = "delivered"
	ShippingStatusCancelled      ShippingStatus = "cancelled"
	ShippingStatusPendingCourier ShippingStatus = "pending_courier"
	ShippingStatusPendingBalance ShippingStatus = "pending_balance"
)

// PaymentMethod of the order
type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodPrepaid PaymentMethod = "prepaid"
)

// Order is the storefront order as seen by fulfillment
type Order struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderNumber     string          `json:"orderNumber" gorm:"type:varchar(100);uniqueIndex"`
	UserID          string          `json:"userId" gorm:"type:varchar(255);index"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(50);not null;default:'pending';index"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" gorm:"type:varchar(20);not null;default:'prepaid'"`
	TotalAmount     float64         `json:"totalAmount" gorm:"type:decimal(12,2)"`
	CustomerEmail   string          `json:"customerEmail" gorm:"type:varchar(255)"`
	Items           []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	ShippingAddress Address         `json:"shippingAddress" gorm:"embedded;embeddedPrefix:ship_to_"`
	Shipping        ShippingInfo    `json:"shipping" gorm:"embedded;embeddedPrefix:shipping_"`
	TrackingHistory []TrackingEvent `json:"trackingHistory" gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem is a purchased line; fulfillment only uses it for weight and carrier payloads
type OrderItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID   uuid.UUID `json:"orderId" gorm:"type:uuid;not null;index"`
	ProductID string    `json:"productId" gorm:"type:varchar(255);not null"`
	SKU       string    `json:"sku" gorm:"type:varchar(100)"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	UnitPrice float64   `json:"unitPrice" gorm:"type:decimal(12,2)"`
	Quantity  int       `json:"quantity" gorm:"not null"`
}

// Address represents a delivery address
type Address struct {
	FullName     string `json:"fullName" gorm:"type:varchar(255)"`
	AddressLine1 string `json:"addressLine1" gorm:"type:varchar(500)"`
	AddressLine2 string `json:"addressLine2" gorm:"type:varchar(500)"`
	City         string `json:"city" gorm:"type:varchar(100)"`
	State        string `json:"state" gorm:"type:varchar(100)"`
	PostalCode   string `json:"postalCode" gorm:"type:varchar(20)"`
	Phone        string `json:"phone" gorm:"type:varchar(50)"`
	Country      string `json:"country" gorm:"type:varchar(100)"`
}

// ShippingInfo is the carrier-facing sub-record of an order.
// ShipmentID is written once; its presence blocks a second shipment for the order.
type ShippingInfo struct {
	ShipmentID        int64          `json:"shipmentId,omitempty"`
	ShiprocketOrderID int64          `json:"shiprocketOrderId,omitempty" gorm:"column:shiprocket_order_id"`
	AWBCode           string         `json:"awbCode,omitempty" gorm:"column:awb_code;type:varchar(100);index"`
	Courier           string         `json:"courier,omitempty" gorm:"type:varchar(255)"`
	CourierID         int            `json:"courierId,omitempty"`
	TrackingURL       string         `json:"trackingUrl,omitempty" gorm:"type:varchar(500)"`
	LabelURL          string         `json:"labelUrl,omitempty" gorm:"type:varchar(500)"`
	ManifestURL       string         `json:"manifestUrl,omitempty" gorm:"type:varchar(500)"`
	Status            ShippingStatus `json:"status" gorm:"type:varchar(50);not null;default:'pending';index"`
	CurrentLocation   string         `json:"currentLocation,omitempty" gorm:"type:varchar(255)"`
	ETA               *time.Time     `json:"eta,omitempty" gorm:"column:eta"`
	PickupScheduledAt *time.Time     `json:"pickupScheduledAt,omitempty"`
	LastUpdateAt      *time.Time     `json:"lastUpdateAt,omitempty"`
	ErrorMessage      string         `json:"errorMessage,omitempty" gorm:"type:text"`
}

// HasShipment reports whether a carrier shipment was already created
func (s ShippingInfo) HasShipment() bool {
	return s.ShipmentID != 0
}

// HasAWB reports whether a waybill was assigned
func (s ShippingInfo) HasAWB() bool {
	return s.AWBCode != ""
}

// TrackingEvent is one carrier scan merged into an order's history
type TrackingEvent struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID    uuid.UUID `json:"orderId" gorm:"type:uuid;not null;uniqueIndex:idx_tracking_event_dedup,priority:1"`
	Timestamp  time.Time `json:"timestamp" gorm:"not null;uniqueIndex:idx_tracking_event_dedup,priority:2"`
	Activity   string    `json:"activity" gorm:"type:varchar(500);uniqueIndex:idx_tracking_event_dedup,priority:3"`
	Location   string    `json:"location" gorm:"type:varchar(255)"`
	StatusCode string    `json:"statusCode" gorm:"type:varchar(50)"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName overrides the default table name
func (TrackingEvent) TableName() string {
	return "order_tracking_events"
}

// DedupKey identifies a scan regardless of which sync delivered it
func (e TrackingEvent) DedupKey() string {
	return e.Timestamp.UTC().Format(time.RFC3339) + "|" + e.Activity
}
