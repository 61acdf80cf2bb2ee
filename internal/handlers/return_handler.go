package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/services"
)

// ReturnHandler handles customer and staff requests for returns
type ReturnHandler struct {
	returns  services.ReturnService
	tracking services.TrackingService
	logger   *logrus.Entry
}

// NewReturnHandler creates a new return handler
func NewReturnHandler(returns services.ReturnService, tracking services.TrackingService, logger *logrus.Logger) *ReturnHandler {
	return &ReturnHandler{
		returns:  returns,
		tracking: tracking,
		logger:   logger.WithField("component", "return_handler"),
	}
}

// CreateReturnRequest is the storefront return form
type CreateReturnRequest struct {
	OrderID       string                     `json:"orderId" binding:"required"`
	Reason        string                     `json:"reason" binding:"required"`
	Items         []services.ReturnItemInput `json:"items" binding:"required,min=1,dive"`
	RefundDetails models.RefundDetails       `json:"refundDetails"`
}

// UpdateReturnStatusRequest is the staff status change body
type UpdateReturnStatusRequest struct {
	Status models.ReturnStatus `json:"status" binding:"required"`
}

// CreateReturn handles POST /api/storefront/returns
func (h *ReturnHandler) CreateReturn(c *gin.Context) {
	var request CreateReturnRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	orderID, err := uuid.Parse(request.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "INVALID_ID",
			Message: "orderId must be a valid UUID",
		})
		return
	}

	outcome, err := h.returns.CreateReturn(c.Request.Context(), services.CreateReturnInput{
		OrderID:       orderID,
		UserID:        currentUserID(c),
		Reason:        request.Reason,
		Items:         request.Items,
		RefundDetails: request.RefundDetails,
	})
	if err != nil {
		respondError(c, h.logger.WithField("order_id", orderID), err)
		return
	}

	message := "Return requested and pickup scheduled"
	if !outcome.Shipment.Scheduled {
		message = "Return requested; pickup will be arranged by our team"
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data:    outcome,
		Message: stringPtr(message),
	})
}

// GetReturn handles GET /api/fulfillment/returns/:returnId
func (h *ReturnHandler) GetReturn(c *gin.Context) {
	returnID, ok := parseIDParam(c, "returnId")
	if !ok {
		return
	}

	ret, err := h.returns.GetReturn(c.Request.Context(), returnID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: ret})
}

// UpdateReturnStatus handles PUT /api/fulfillment/returns/:returnId/status
func (h *ReturnHandler) UpdateReturnStatus(c *gin.Context) {
	returnID, ok := parseIDParam(c, "returnId")
	if !ok {
		return
	}

	var request UpdateReturnStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	ret, err := h.returns.UpdateReturnStatus(c.Request.Context(), returnID, request.Status)
	if err != nil {
		respondError(c, h.logger.WithField("return_id", returnID), err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    ret,
		Message: stringPtr("Return status updated"),
	})
}

// RetryReturnShipment handles POST /api/fulfillment/returns/:returnId/shipment/retry
func (h *ReturnHandler) RetryReturnShipment(c *gin.Context) {
	returnID, ok := parseIDParam(c, "returnId")
	if !ok {
		return
	}

	outcome, err := h.returns.RetryReturnShipment(c.Request.Context(), returnID)
	if err != nil {
		respondError(c, h.logger.WithField("return_id", returnID), err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: outcome})
}

// SyncReturnTracking handles POST /api/fulfillment/returns/:returnId/tracking/sync
func (h *ReturnHandler) SyncReturnTracking(c *gin.Context) {
	returnID, ok := parseIDParam(c, "returnId")
	if !ok {
		return
	}

	result, err := h.tracking.UpdateReturnTracking(c.Request.Context(), returnID)
	if err != nil {
		respondError(c, h.logger.WithField("return_id", returnID), err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: result})
}

// MarkRefundComplete handles POST /api/fulfillment/returns/:returnId/refund-complete
func (h *ReturnHandler) MarkRefundComplete(c *gin.Context) {
	returnID, ok := parseIDParam(c, "returnId")
	if !ok {
		return
	}

	ret, err := h.returns.MarkRefundComplete(c.Request.Context(), returnID)
	if err != nil {
		respondError(c, h.logger.WithField("return_id", returnID), err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    ret,
		Message: stringPtr("Refund marked complete"),
	})
}

// currentUserID reads the customer id set by the auth middleware
func currentUserID(c *gin.Context) string {
	for _, key := range []string{"user_id", "userId"} {
		if userID := c.GetString(key); userID != "" {
			return userID
		}
	}
	return c.GetHeader("X-User-ID")
}
