package models

import (
	"time"

	"github.com/google/uuid"
)

// ReturnStatus represents the status of a return request
type ReturnStatus string

const (
	ReturnStatusRequested        ReturnStatus = "requested"          // Customer submitted the request
	ReturnStatusPickupScheduled  ReturnStatus = "pickup_scheduled"   // Carrier return order + AWB in place
	ReturnStatusInTransit        ReturnStatus = "in_transit"         // Picked up from the customer
	ReturnStatusReturnedToSeller ReturnStatus = "returned_to_seller" // Carrier delivered it back
	ReturnStatusReceived         ReturnStatus = "received"           // Checked in at the warehouse
	ReturnStatusCompleted        ReturnStatus = "completed"          // Refund issued
	ReturnStatusCancelled        ReturnStatus = "cancelled"
)

// IsTerminal reports whether the status frees the order for another return
func (s ReturnStatus) IsTerminal() bool {
	return s == ReturnStatusCompleted || s == ReturnStatusCancelled
}

// TerminalReturnStatuses lists statuses that end a return
var TerminalReturnStatuses = []ReturnStatus{ReturnStatusCompleted, ReturnStatusCancelled}

// Return represents a customer return request for a delivered order.
// At most one non-terminal return may exist per order.
type Return struct {
	ID      uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID uuid.UUID    `json:"orderId" gorm:"type:uuid;not null;index"`
	UserID  string       `json:"userId" gorm:"type:varchar(255);index"`
	Reason  string       `json:"reason" gorm:"type:text"`
	Items   []ReturnItem `json:"items" gorm:"foreignKey:ReturnID"`
	Status  ReturnStatus `json:"status" gorm:"type:varchar(30);not null;default:'requested';index"`

	// Carrier details, filled by the best-effort shipment phase
	ShiprocketReturnID         int64      `json:"shiprocketReturnId,omitempty" gorm:"column:shiprocket_return_id"`
	ShiprocketReturnShipmentID int64      `json:"shiprocketReturnShipmentId,omitempty" gorm:"column:shiprocket_return_shipment_id"`
	ShiprocketReturnAWB        string     `json:"shiprocketReturnAwb,omitempty" gorm:"column:shiprocket_return_awb;type:varchar(100);index"`
	CourierName                string     `json:"courierName,omitempty" gorm:"type:varchar(255)"`
	EstimatedPickupDate        *time.Time `json:"estimatedPickupDate,omitempty"`
	ShipmentError              string     `json:"shipmentError,omitempty" gorm:"type:text"`

	// Refund
	RefundDetails     RefundDetails `json:"refundDetails" gorm:"embedded;embeddedPrefix:refund_"`
	RefundSucceeded   bool          `json:"refundSucceeded" gorm:"not null;default:false"`
	RefundProcessedAt *time.Time    `json:"refundProcessedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasAWB reports whether the carrier issued a return waybill
func (r *Return) HasAWB() bool {
	return r.ShiprocketReturnAWB != ""
}

// ReturnItem is a single product line being sent back
type ReturnItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ReturnID  uuid.UUID `json:"returnId" gorm:"type:uuid;not null;index"`
	ProductID string    `json:"productId" gorm:"type:varchar(255);not null"`
	Name      string    `json:"name" gorm:"type:varchar(255)"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	Reason    string    `json:"reason" gorm:"type:text"`
}

// RefundDetails is the bank account the customer wants the refund paid to
type RefundDetails struct {
	AccountHolderName string `json:"accountHolderName" gorm:"type:varchar(255)"`
	AccountNumber     string `json:"accountNumber" gorm:"type:varchar(50)"`
	IFSCCode          string `json:"ifscCode" gorm:"type:varchar(20)"`
	BankName          string `json:"bankName" gorm:"type:varchar(255)"`
	UPIID             string `json:"upiId,omitempty" gorm:"type:varchar(255)"`
}
