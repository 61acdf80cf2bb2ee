package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/services"
)

func newReturnRouter(returns *MockReturnService, tracking *MockTrackingService) *gin.Engine {
	handler := NewReturnHandler(returns, tracking, testLogger())
	router := gin.New()
	router.POST("/api/storefront/returns", handler.CreateReturn)
	group := router.Group("/api/fulfillment/returns/:returnId")
	group.GET("", handler.GetReturn)
	group.PUT("/status", handler.UpdateReturnStatus)
	group.POST("/shipment/retry", handler.RetryReturnShipment)
	group.POST("/tracking/sync", handler.SyncReturnTracking)
	group.POST("/refund-complete", handler.MarkRefundComplete)
	return router
}

func validReturnBody(orderID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"orderId": orderID.String(),
		"reason":  "Clasp broken",
		"items": []map[string]interface{}{
			{"productId": "ring-001", "quantity": 1, "reason": "damaged"},
		},
		"refundDetails": map[string]interface{}{
			"accountHolderName": "Asha Rao",
			"upiId":             "asha@upi",
		},
	}
}

func TestReturnHandler_CreateReturn_Scheduled(t *testing.T) {
	returns := new(MockReturnService)
	router := newReturnRouter(returns, new(MockTrackingService))

	orderID := uuid.New()
	returnID := uuid.New()
	returns.On("CreateReturn", mock.Anything, mock.MatchedBy(func(input services.CreateReturnInput) bool {
		return input.OrderID == orderID &&
			input.UserID == "user-1" &&
			len(input.Items) == 1 &&
			input.Items[0].ProductID == "ring-001" &&
			input.RefundDetails.UPIID == "asha@upi"
	})).Return(&services.ReturnOutcome{
		Return:   &models.Return{ID: returnID, OrderID: orderID, Status: models.ReturnStatusPickupScheduled},
		Shipment: services.ReturnShipmentOutcome{Scheduled: true},
	}, nil)

	w := performRequest(router, http.MethodPost, "/api/storefront/returns", validReturnBody(orderID),
		map[string]string{"X-User-ID": "user-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Return requested and pickup scheduled", body["message"])
	returns.AssertExpectations(t)
}

func TestReturnHandler_CreateReturn_ShipmentDeferred(t *testing.T) {
	returns := new(MockReturnService)
	router := newReturnRouter(returns, new(MockTrackingService))

	orderID := uuid.New()
	returns.On("CreateReturn", mock.Anything, mock.Anything).Return(&services.ReturnOutcome{
		Return:   &models.Return{ID: uuid.New(), OrderID: orderID, Status: models.ReturnStatusRequested},
		Shipment: services.ReturnShipmentOutcome{
			Scheduled: false,
			Stage:     services.ReturnStageServiceable,
			Error:     "no couriers available",
		},
	}, nil)

	w := performRequest(router, http.MethodPost, "/api/storefront/returns", validReturnBody(orderID), nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Return requested; pickup will be arranged by our team", body["message"])
	shipment := body["data"].(map[string]interface{})["shipment"].(map[string]interface{})
	assert.Equal(t, false, shipment["scheduled"])
	assert.Equal(t, services.ReturnStageServiceable, shipment["stage"])
}

func TestReturnHandler_CreateReturn_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing items",
			body: map[string]interface{}{"orderId": uuid.New().String(), "reason": "x"},
		},
		{
			name: "malformed order id",
			body: map[string]interface{}{
				"orderId": "abc",
				"reason":  "x",
				"items":   []map[string]interface{}{{"productId": "p", "quantity": 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			returns := new(MockReturnService)
			router := newReturnRouter(returns, new(MockTrackingService))

			w := performRequest(router, http.MethodPost, "/api/storefront/returns", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			returns.AssertNotCalled(t, "CreateReturn", mock.Anything, mock.Anything)
		})
	}
}

func TestReturnHandler_CreateReturn_ActiveReturnConflict(t *testing.T) {
	returns := new(MockReturnService)
	router := newReturnRouter(returns, new(MockTrackingService))

	orderID := uuid.New()
	returns.On("CreateReturn", mock.Anything, mock.Anything).
		Return(nil, &services.AlreadyExistsError{Resource: "active return", ID: orderID.String()})

	w := performRequest(router, http.MethodPost, "/api/storefront/returns", validReturnBody(orderID), nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReturnHandler_UpdateReturnStatus(t *testing.T) {
	returns := new(MockReturnService)
	router := newReturnRouter(returns, new(MockTrackingService))

	returnID := uuid.New()
	returns.On("UpdateReturnStatus", mock.Anything, returnID, models.ReturnStatusReceived).
		Return(&models.Return{ID: returnID, Status: models.ReturnStatusReceived}, nil)

	w := performRequest(router, http.MethodPut, "/api/fulfillment/returns/"+returnID.String()+"/status",
		map[string]string{"status": "received"}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "received", data["status"])
	returns.AssertExpectations(t)
}

func TestReturnHandler_MarkRefundComplete_Precondition(t *testing.T) {
	returns := new(MockReturnService)
	router := newReturnRouter(returns, new(MockTrackingService))

	returnID := uuid.New()
	returns.On("MarkRefundComplete", mock.Anything, returnID).
		Return(nil, &services.PreconditionError{Reason: "return has not been received"})

	w := performRequest(router, http.MethodPost, "/api/fulfillment/returns/"+returnID.String()+"/refund-complete", nil, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "return has not been received", decodeBody(t, w)["message"])
}

func TestReturnHandler_SyncReturnTracking(t *testing.T) {
	tracking := new(MockTrackingService)
	router := newReturnRouter(new(MockReturnService), tracking)

	returnID := uuid.New()
	tracking.On("UpdateReturnTracking", mock.Anything, returnID).Return(&services.ReturnSyncResult{
		ReturnID:       returnID,
		CarrierStatus:  "PICKED UP",
		PreviousStatus: models.ReturnStatusPickupScheduled,
		Status:         models.ReturnStatusInTransit,
	}, nil)

	w := performRequest(router, http.MethodPost, "/api/fulfillment/returns/"+returnID.String()+"/tracking/sync", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "in_transit", data["status"])
}
