package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ===== Service mocks =====

type MockShipmentService struct {
	mock.Mock
}

func (m *MockShipmentService) order(args mock.Arguments) (*models.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockShipmentService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

func (m *MockShipmentService) CreateShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

func (m *MockShipmentService) ProcessShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

func (m *MockShipmentService) AutomateShipping(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

func (m *MockShipmentService) CancelShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

func (m *MockShipmentService) GenerateLabel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

type MockTrackingService struct {
	mock.Mock
}

func (m *MockTrackingService) UpdateTrackingInfo(ctx context.Context, orderID uuid.UUID) (*services.SyncResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SyncResult), args.Error(1)
}

func (m *MockTrackingService) BulkUpdateTracking(ctx context.Context) (*services.BulkSyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BulkSyncResult), args.Error(1)
}

func (m *MockTrackingService) ApplyWebhook(ctx context.Context, update services.WebhookUpdate) (*services.WebhookResult, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WebhookResult), args.Error(1)
}

func (m *MockTrackingService) UpdateReturnTracking(ctx context.Context, returnID uuid.UUID) (*services.ReturnSyncResult, error) {
	args := m.Called(ctx, returnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReturnSyncResult), args.Error(1)
}

type MockReturnService struct {
	mock.Mock
}

func (m *MockReturnService) ret(args mock.Arguments) (*models.Return, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Return), args.Error(1)
}

func (m *MockReturnService) outcome(args mock.Arguments) (*services.ReturnOutcome, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReturnOutcome), args.Error(1)
}

func (m *MockReturnService) GetReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	return m.ret(m.Called(ctx, returnID))
}

func (m *MockReturnService) CreateReturn(ctx context.Context, input services.CreateReturnInput) (*services.ReturnOutcome, error) {
	return m.outcome(m.Called(ctx, input))
}

func (m *MockReturnService) RetryReturnShipment(ctx context.Context, returnID uuid.UUID) (*services.ReturnOutcome, error) {
	return m.outcome(m.Called(ctx, returnID))
}

func (m *MockReturnService) UpdateReturnStatus(ctx context.Context, returnID uuid.UUID, status models.ReturnStatus) (*models.Return, error) {
	return m.ret(m.Called(ctx, returnID, status))
}

func (m *MockReturnService) MarkRefundComplete(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	return m.ret(m.Called(ctx, returnID))
}

// ===== Request helpers =====

func performRequest(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return body
}
