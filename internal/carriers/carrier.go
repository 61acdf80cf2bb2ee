package carriers

import (
	"context"
	"fmt"
	"time"
)

// LogisticsClient is the narrow carrier surface the fulfillment core drives.
// Every method is a single request/response; implementations hold no order state.
type LogisticsClient interface {
	// CreateOrder registers an outbound order and returns the carrier shipment id
	CreateOrder(ctx context.Context, request CreateOrderRequest) (*CreateOrderResponse, error)

	// GetAvailableCouriers quotes serviceable couriers between two pincodes
	GetAvailableCouriers(ctx context.Context, request ServiceabilityRequest) ([]CourierQuote, error)

	// AssignAWB allocates a waybill from the given courier to a shipment
	AssignAWB(ctx context.Context, request AssignAWBRequest) (*AssignAWBResponse, error)

	// GeneratePickup asks the courier to collect the shipment
	GeneratePickup(ctx context.Context, shipmentID int64) (*PickupResponse, error)

	// TrackByAWB fetches the scan history for a waybill
	TrackByAWB(ctx context.Context, awb string) (*TrackingResponse, error)

	// CancelShipment cancels the shipment behind a waybill
	CancelShipment(ctx context.Context, awb string) (*CancelResponse, error)

	// CreateReturnOrder registers a reverse pickup from the customer
	CreateReturnOrder(ctx context.Context, request CreateReturnOrderRequest) (*CreateOrderResponse, error)

	// GenerateLabel produces the shipping label and manifest for a shipment
	GenerateLabel(ctx context.Context, shipmentID int64) (*LabelResponse, error)
}

// Config holds configuration for the logistics provider
type Config struct {
	Email             string
	Password          string
	BaseURL           string
	PickupLocation    string
	RequestsPerSecond float64
	Timeout           time.Duration
	Retry             RetryConfig
}

// Provider-reported success codes
const (
	OrderStatusCodeNew       = 1
	ReturnStatusCodePending  = 21
	AWBAssignStatusAssigned  = 1
	PickupStatusGenerated    = 1
	LabelCreated             = 1
	TrackStatusNoInformation = 0
)

// Payment methods understood by the provider
const (
	PaymentMethodPrepaid = "Prepaid"
	PaymentMethodCOD     = "COD"
)

// OrderItem is a line on a carrier order
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	QCEnable     bool    `json:"qc_enable,omitempty"`
}

// Dimensions of the parcel in centimetres
type Dimensions struct {
	Length  float64
	Breadth float64
	Height  float64
}

// CreateOrderRequest is the outbound order payload
type CreateOrderRequest struct {
	OrderID          string
	OrderDate        time.Time
	PickupLocation   string
	BillingFirstName string
	BillingLastName  string
	Address1         string
	Address2         string
	City             string
	State            string
	Pincode          string
	Country          string
	Email            string
	Phone            string
	Items            []OrderItem
	PaymentMethod    string
	SubTotal         float64
	Dimensions       Dimensions
	Weight           float64
}

// CreateOrderResponse is returned for both forward and return orders
type CreateOrderResponse struct {
	OrderID    int64  `json:"order_id"`
	ShipmentID int64  `json:"shipment_id"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
}

// ServiceabilityRequest asks which couriers serve a lane
type ServiceabilityRequest struct {
	PickupPincode   string
	DeliveryPincode string
	Weight          float64
	CODAmount       float64
	IsReturn        bool
}

// CourierQuote is one serviceable courier option
type CourierQuote struct {
	CourierCompanyID      int     `json:"courier_company_id"`
	CourierName           string  `json:"courier_name"`
	Rate                  float64 `json:"rate"`
	FreightCharge         float64 `json:"freight_charge"`
	IsSurface             bool    `json:"is_surface"`
	EstimatedDeliveryDays int     `json:"estimated_delivery_days"`
	ETD                   string  `json:"etd"`
}

// AssignAWBRequest allocates a waybill
type AssignAWBRequest struct {
	ShipmentID int64
	CourierID  int
	IsReturn   bool
}

// AssignAWBResponse carries the allocated waybill
type AssignAWBResponse struct {
	AWBAssignStatus     int
	AWBCode             string
	CourierName         string
	CourierCompanyID    int
	PickupScheduledDate *time.Time
	Message             string
}

// PickupResponse is the pickup generation result
type PickupResponse struct {
	PickupStatus        int
	PickupScheduledDate *time.Time
	PickupTokenNumber   string
}

// Scan is a single tracking activity
type Scan struct {
	Date     time.Time
	Status   string
	Activity string
	Location string
}

// TrackingResponse is the normalised tracking result for a waybill
type TrackingResponse struct {
	AWB           string
	TrackStatus   int
	CurrentStatus string
	EDD           *time.Time
	Scans         []Scan
}

// HasData reports whether the carrier had anything at all for the waybill
func (t *TrackingResponse) HasData() bool {
	if t == nil {
		return false
	}
	return t.TrackStatus != TrackStatusNoInformation || t.CurrentStatus != "" || len(t.Scans) > 0
}

// CancelResponse is the cancellation result
type CancelResponse struct {
	StatusCode int
	Message    string
}

// CreateReturnOrderRequest is the reverse pickup payload.
// Pickup is the customer; Shipping is the warehouse receiving the return.
type CreateReturnOrderRequest struct {
	OrderID       string
	OrderDate     time.Time
	Pickup        Party
	Shipping      Party
	Items         []OrderItem
	PaymentMethod string
	SubTotal      float64
	Dimensions    Dimensions
	Weight        float64
}

// Party is one end of a return shipment
type Party struct {
	Name     string
	Address1 string
	Address2 string
	City     string
	State    string
	Country  string
	Pincode  string
	Email    string
	Phone    string
}

// LabelResponse is the label generation result
type LabelResponse struct {
	LabelCreated int
	LabelURL     string
	ManifestURL  string
}

// APIError is a non-success answer from the provider
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: API returned status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}
