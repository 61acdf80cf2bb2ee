package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/services"
)

// FulfillmentHandler handles staff and internal requests for forward shipments
type FulfillmentHandler struct {
	shipments services.ShipmentService
	tracking  services.TrackingService
	logger    *logrus.Entry
}

// NewFulfillmentHandler creates a new fulfillment handler
func NewFulfillmentHandler(shipments services.ShipmentService, tracking services.TrackingService, logger *logrus.Logger) *FulfillmentHandler {
	return &FulfillmentHandler{
		shipments: shipments,
		tracking:  tracking,
		logger:    logger.WithField("component", "fulfillment_handler"),
	}
}

// GetOrder handles GET /api/fulfillment/orders/:orderId
func (h *FulfillmentHandler) GetOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}

	order, err := h.shipments.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: order})
}

// CreateShipment handles POST /api/fulfillment/orders/:orderId/shipment
func (h *FulfillmentHandler) CreateShipment(c *gin.Context) {
	h.runShipmentStep(c, http.StatusCreated, "Shipment created successfully", h.shipments.CreateShipment)
}

// ProcessShipment handles POST /api/fulfillment/orders/:orderId/shipment/process
func (h *FulfillmentHandler) ProcessShipment(c *gin.Context) {
	h.runShipmentStep(c, http.StatusOK, "Courier assigned and pickup requested", h.shipments.ProcessShipment)
}

// AutomateShipping handles POST /api/fulfillment/orders/:orderId/shipment/automate
// and the internal payment-completion hook.
func (h *FulfillmentHandler) AutomateShipping(c *gin.Context) {
	h.runShipmentStep(c, http.StatusOK, "Shipping automated successfully", h.shipments.AutomateShipping)
}

// CancelShipment handles POST /api/fulfillment/orders/:orderId/shipment/cancel
func (h *FulfillmentHandler) CancelShipment(c *gin.Context) {
	h.runShipmentStep(c, http.StatusOK, "Shipment cancelled successfully", h.shipments.CancelShipment)
}

// GenerateLabel handles POST /api/fulfillment/orders/:orderId/shipment/label
func (h *FulfillmentHandler) GenerateLabel(c *gin.Context) {
	h.runShipmentStep(c, http.StatusOK, "Label generated successfully", h.shipments.GenerateLabel)
}

func (h *FulfillmentHandler) runShipmentStep(
	c *gin.Context,
	status int,
	message string,
	step func(ctx context.Context, orderID uuid.UUID) (*models.Order, error),
) {
	orderID, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}

	order, err := step(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.logger.WithField("order_id", orderID), err)
		return
	}

	c.JSON(status, models.SuccessResponse{
		Success: true,
		Data:    order,
		Message: stringPtr(message),
	})
}

// SyncTracking handles POST /api/fulfillment/orders/:orderId/tracking/sync
func (h *FulfillmentHandler) SyncTracking(c *gin.Context) {
	orderID, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}

	result, err := h.tracking.UpdateTrackingInfo(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.logger.WithField("order_id", orderID), err)
		return
	}

	message := "Tracking synced"
	if result.NoUpdate {
		message = result.Message
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    result,
		Message: stringPtr(message),
	})
}

// BulkSyncTracking handles POST /api/fulfillment/tracking/bulk-sync
func (h *FulfillmentHandler) BulkSyncTracking(c *gin.Context) {
	result, err := h.tracking.BulkUpdateTracking(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: result})
}
