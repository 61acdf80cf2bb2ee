package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fulfillment-service/internal/metrics"
)

const (
	shiprocketTokenTTL = 9 * 24 * time.Hour // tokens are valid for 10 days
	maxErrorBodyLength = 500
)

// ShiprocketClient binds LogisticsClient to the Shiprocket REST API
type ShiprocketClient struct {
	config      Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Entry

	mu             sync.Mutex
	authToken      string
	tokenExpiry    time.Time
	pickupLocation string
}

var _ LogisticsClient = (*ShiprocketClient)(nil)

// NewShiprocketClient creates a new Shiprocket client
func NewShiprocketClient(config Config, logger *logrus.Logger) *ShiprocketClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &ShiprocketClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:         logger.WithField("component", "carriers.shiprocket"),
		pickupLocation: config.PickupLocation,
	}
}

// token returns a cached auth token, logging in when it is missing or stale
func (s *ShiprocketClient) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authToken != "" && time.Now().Before(s.tokenExpiry) {
		return s.authToken, nil
	}

	payload := map[string]string{
		"email":    s.config.Email,
		"password": s.config.Password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/v1/external/auth/login", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Operation: "auth", StatusCode: resp.StatusCode, Message: providerMessage(respBody)}
	}

	var authResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if authResp.Token == "" {
		return "", &APIError{Operation: "auth", StatusCode: resp.StatusCode, Message: "empty token"}
	}

	s.authToken = authResp.Token
	s.tokenExpiry = time.Now().Add(shiprocketTokenTTL)
	return s.authToken, nil
}

func (s *ShiprocketClient) invalidateToken() {
	s.mu.Lock()
	s.authToken = ""
	s.tokenExpiry = time.Time{}
	s.mu.Unlock()
}

// doRequest performs one authenticated call and decodes a JSON answer into out
func (s *ShiprocketClient) doRequest(ctx context.Context, operation, method, path string, query url.Values, payload, out interface{}) (status int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveCarrierRequest(operation, start, err) }()

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := s.token(ctx)
	if err != nil {
		return 0, fmt.Errorf("authentication failed: %w", err)
	}

	endpoint := s.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		s.invalidateToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: providerMessage(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}

// CreateOrder creates an adhoc forward order
func (s *ShiprocketClient) CreateOrder(ctx context.Context, request CreateOrderRequest) (*CreateOrderResponse, error) {
	pickupLocation := request.PickupLocation
	if pickupLocation == "" {
		var err error
		if pickupLocation, err = s.resolvePickupLocation(ctx); err != nil {
			return nil, err
		}
	}

	payload := map[string]interface{}{
		"order_id":              request.OrderID,
		"order_date":            request.OrderDate.Format("2006-01-02 15:04"),
		"pickup_location":       pickupLocation,
		"billing_customer_name": request.BillingFirstName,
		"billing_last_name":     request.BillingLastName,
		"billing_address":       request.Address1,
		"billing_address_2":     request.Address2,
		"billing_city":          request.City,
		"billing_pincode":       request.Pincode,
		"billing_state":         request.State,
		"billing_country":       request.Country,
		"billing_email":         request.Email,
		"billing_phone":         request.Phone,
		"shipping_is_billing":   true,
		"order_items":           request.Items,
		"payment_method":        request.PaymentMethod,
		"sub_total":             request.SubTotal,
		"length":                request.Dimensions.Length,
		"breadth":               request.Dimensions.Breadth,
		"height":                request.Dimensions.Height,
		"weight":                request.Weight,
	}

	var createResp CreateOrderResponse
	if _, err := s.doRequest(ctx, "create_order", http.MethodPost, "/v1/external/orders/create/adhoc", nil, payload, &createResp); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_ref":   request.OrderID,
		"order_id":    createResp.OrderID,
		"shipment_id": createResp.ShipmentID,
		"status_code": createResp.StatusCode,
	}).Info("Shiprocket order created")

	return &createResp, nil
}

// GetAvailableCouriers retrieves serviceable couriers for a lane
func (s *ShiprocketClient) GetAvailableCouriers(ctx context.Context, request ServiceabilityRequest) ([]CourierQuote, error) {
	query := url.Values{}
	query.Set("pickup_postcode", request.PickupPincode)
	query.Set("delivery_postcode", request.DeliveryPincode)
	query.Set("weight", fmt.Sprintf("%.2f", request.Weight))
	if request.CODAmount > 0 {
		query.Set("cod", "1")
		query.Set("declared_value", fmt.Sprintf("%.2f", request.CODAmount))
	} else {
		query.Set("cod", "0")
	}
	if request.IsReturn {
		query.Set("is_return", "1")
	}

	var ratesResp struct {
		Data struct {
			AvailableCouriers []struct {
				CourierName           string      `json:"courier_name"`
				CourierCompanyID      int         `json:"courier_company_id"`
				Rate                  float64     `json:"rate"`
				FreightCharge         float64     `json:"freight_charge"`
				IsSurface             bool        `json:"is_surface"`
				ETD                   string      `json:"etd"`
				EstimatedDeliveryDays interface{} `json:"estimated_delivery_days"` // Can be string or int
			} `json:"available_courier_companies"`
		} `json:"data"`
	}

	err := withRetry(ctx, s.config.Retry, func(ctx context.Context) error {
		status, err := s.doRequest(ctx, "serviceability", http.MethodGet, "/v1/external/courier/serviceability/", query, nil, &ratesResp)
		if status == http.StatusNotFound {
			// lane not serviceable at all
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	quotes := make([]CourierQuote, 0, len(ratesResp.Data.AvailableCouriers))
	for _, courier := range ratesResp.Data.AvailableCouriers {
		quotes = append(quotes, CourierQuote{
			CourierCompanyID:      courier.CourierCompanyID,
			CourierName:           courier.CourierName,
			Rate:                  courier.Rate,
			FreightCharge:         courier.FreightCharge,
			IsSurface:             courier.IsSurface,
			ETD:                   courier.ETD,
			EstimatedDeliveryDays: parseDeliveryDays(courier.EstimatedDeliveryDays),
		})
	}
	return quotes, nil
}

// AssignAWB assigns a courier and generates the AWB for a shipment
func (s *ShiprocketClient) AssignAWB(ctx context.Context, request AssignAWBRequest) (*AssignAWBResponse, error) {
	payload := map[string]interface{}{
		"shipment_id": request.ShipmentID,
		"courier_id":  request.CourierID,
	}
	if request.IsReturn {
		payload["is_return"] = 1
	}

	var awbResp struct {
		AWBAssignStatus int    `json:"awb_assign_status"`
		Message         string `json:"message"`
		Response        struct {
			Data struct {
				AWBCode             string `json:"awb_code"`
				CourierName         string `json:"courier_name"`
				CourierCompanyID    int    `json:"courier_company_id"`
				PickupScheduledDate string `json:"pickup_scheduled_date"`
				AWBAssignError      string `json:"awb_assign_error"`
			} `json:"data"`
		} `json:"response"`
	}

	status, err := s.doRequest(ctx, "assign_awb", http.MethodPost, "/v1/external/courier/assign/awb", nil, payload, &awbResp)
	if err != nil {
		return nil, err
	}

	data := awbResp.Response.Data
	if awbResp.AWBAssignStatus != AWBAssignStatusAssigned || data.AWBCode == "" {
		message := awbResp.Message
		if message == "" {
			message = data.AWBAssignError
		}
		if message == "" {
			message = "awb not assigned"
		}
		return nil, &APIError{Operation: "assign_awb", StatusCode: status, Message: message}
	}

	return &AssignAWBResponse{
		AWBAssignStatus:     awbResp.AWBAssignStatus,
		AWBCode:             data.AWBCode,
		CourierName:         data.CourierName,
		CourierCompanyID:    data.CourierCompanyID,
		PickupScheduledDate: ParseProviderTime(data.PickupScheduledDate),
	}, nil
}

// GeneratePickup requests a courier pickup for a shipment
func (s *ShiprocketClient) GeneratePickup(ctx context.Context, shipmentID int64) (*PickupResponse, error) {
	payload := map[string]interface{}{
		"shipment_id": []int64{shipmentID},
	}

	var pickupResp struct {
		PickupStatus int `json:"pickup_status"`
		Response     struct {
			PickupScheduledDate string `json:"pickup_scheduled_date"`
			PickupTokenNumber   string `json:"pickup_token_number"`
		} `json:"response"`
	}

	status, err := s.doRequest(ctx, "generate_pickup", http.MethodPost, "/v1/external/courier/generate/pickup", nil, payload, &pickupResp)
	if err != nil {
		return nil, err
	}
	if pickupResp.PickupStatus != PickupStatusGenerated {
		return nil, &APIError{Operation: "generate_pickup", StatusCode: status, Message: "pickup not generated"}
	}

	return &PickupResponse{
		PickupStatus:        pickupResp.PickupStatus,
		PickupScheduledDate: ParseProviderTime(pickupResp.Response.PickupScheduledDate),
		PickupTokenNumber:   pickupResp.Response.PickupTokenNumber,
	}, nil
}

// shiprocketTrackingResponse represents Shiprocket tracking API response
type shiprocketTrackingResponse struct {
	TrackingData struct {
		TrackStatus    int    `json:"track_status"`
		ShipmentStatus int    `json:"shipment_status"`
		ETD            string `json:"etd"`
		Error          string `json:"error"`
		ShipmentTrack  []struct {
			AWBCode       string `json:"awb_code"`
			CurrentStatus string `json:"current_status"`
			EDD           string `json:"edd"`
		} `json:"shipment_track"`
		ShipmentTrackActivities []struct {
			Date     string `json:"date"`
			Status   string `json:"status"`
			Activity string `json:"activity"`
			Location string `json:"location"`
		} `json:"shipment_track_activities"`
	} `json:"tracking_data"`
}

// TrackByAWB retrieves tracking information for a waybill
func (s *ShiprocketClient) TrackByAWB(ctx context.Context, awb string) (*TrackingResponse, error) {
	var trackResp shiprocketTrackingResponse
	err := withRetry(ctx, s.config.Retry, func(ctx context.Context) error {
		_, err := s.doRequest(ctx, "track", http.MethodGet, "/v1/external/courier/track/awb/"+url.PathEscape(awb), nil, nil, &trackResp)
		return err
	})
	if err != nil {
		return nil, err
	}

	data := trackResp.TrackingData
	result := &TrackingResponse{
		AWB:         awb,
		TrackStatus: data.TrackStatus,
	}

	edd := data.ETD
	if len(data.ShipmentTrack) > 0 {
		result.CurrentStatus = strings.TrimSpace(data.ShipmentTrack[0].CurrentStatus)
		if data.ShipmentTrack[0].EDD != "" {
			edd = data.ShipmentTrack[0].EDD
		}
	}
	result.EDD = ParseProviderTime(edd)

	for _, activity := range data.ShipmentTrackActivities {
		timestamp := ParseProviderTime(activity.Date)
		if timestamp == nil {
			s.logger.WithField("awb", awb).Debugf("Skipping scan with unparseable date %q", activity.Date)
			continue
		}
		result.Scans = append(result.Scans, Scan{
			Date:     *timestamp,
			Status:   activity.Status,
			Activity: activity.Activity,
			Location: activity.Location,
		})
	}

	return result, nil
}

// CancelShipment cancels the shipment behind a waybill
func (s *ShiprocketClient) CancelShipment(ctx context.Context, awb string) (*CancelResponse, error) {
	payload := map[string]interface{}{
		"awbs": []string{awb},
	}

	var cancelResp struct {
		Message string `json:"message"`
	}
	status, err := s.doRequest(ctx, "cancel_shipment", http.MethodPost, "/v1/external/orders/cancel/shipment/awbs", nil, payload, &cancelResp)
	if err != nil {
		return nil, err
	}

	return &CancelResponse{StatusCode: status, Message: cancelResp.Message}, nil
}

// CreateReturnOrder creates a reverse pickup order
func (s *ShiprocketClient) CreateReturnOrder(ctx context.Context, request CreateReturnOrderRequest) (*CreateOrderResponse, error) {
	payload := map[string]interface{}{
		"order_id":               request.OrderID,
		"order_date":             request.OrderDate.Format("2006-01-02"),
		"pickup_customer_name":   request.Pickup.Name,
		"pickup_address":         request.Pickup.Address1,
		"pickup_address_2":       request.Pickup.Address2,
		"pickup_city":            request.Pickup.City,
		"pickup_state":           request.Pickup.State,
		"pickup_country":         request.Pickup.Country,
		"pickup_pincode":         request.Pickup.Pincode,
		"pickup_email":           request.Pickup.Email,
		"pickup_phone":           request.Pickup.Phone,
		"shipping_customer_name": request.Shipping.Name,
		"shipping_address":       request.Shipping.Address1,
		"shipping_address_2":     request.Shipping.Address2,
		"shipping_city":          request.Shipping.City,
		"shipping_state":         request.Shipping.State,
		"shipping_country":       request.Shipping.Country,
		"shipping_pincode":       request.Shipping.Pincode,
		"shipping_email":         request.Shipping.Email,
		"shipping_phone":         request.Shipping.Phone,
		"order_items":            request.Items,
		"payment_method":         request.PaymentMethod,
		"sub_total":              request.SubTotal,
		"length":                 request.Dimensions.Length,
		"breadth":                request.Dimensions.Breadth,
		"height":                 request.Dimensions.Height,
		"weight":                 request.Weight,
	}

	var returnResp CreateOrderResponse
	if _, err := s.doRequest(ctx, "create_return_order", http.MethodPost, "/v1/external/orders/create/return", nil, payload, &returnResp); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_ref":   request.OrderID,
		"order_id":    returnResp.OrderID,
		"shipment_id": returnResp.ShipmentID,
	}).Info("Shiprocket return order created")

	return &returnResp, nil
}

// GenerateLabel generates the shipping label; the manifest is best-effort
func (s *ShiprocketClient) GenerateLabel(ctx context.Context, shipmentID int64) (*LabelResponse, error) {
	payload := map[string]interface{}{
		"shipment_id": []int64{shipmentID},
	}

	var labelResp struct {
		LabelCreated int    `json:"label_created"`
		LabelURL     string `json:"label_url"`
		Response     string `json:"response"`
	}
	status, err := s.doRequest(ctx, "generate_label", http.MethodPost, "/v1/external/courier/generate/label", nil, payload, &labelResp)
	if err != nil {
		return nil, err
	}
	if labelResp.LabelCreated != LabelCreated || labelResp.LabelURL == "" {
		message := labelResp.Response
		if message == "" {
			message = "label not created"
		}
		return nil, &APIError{Operation: "generate_label", StatusCode: status, Message: message}
	}

	result := &LabelResponse{
		LabelCreated: labelResp.LabelCreated,
		LabelURL:     labelResp.LabelURL,
	}

	var manifestResp struct {
		ManifestURL string `json:"manifest_url"`
	}
	if _, err := s.doRequest(ctx, "generate_manifest", http.MethodPost, "/v1/external/manifests/generate", nil, payload, &manifestResp); err != nil {
		s.logger.WithError(err).WithField("shipment_id", shipmentID).Warn("Manifest generation failed")
	} else {
		result.ManifestURL = manifestResp.ManifestURL
	}

	return result, nil
}

// PickupLocation represents a Shiprocket pickup location
type PickupLocation struct {
	ID                int    `json:"id"`
	PickupCode        string `json:"pickup_location"`
	PinCode           string `json:"pin_code"`
	IsPrimaryLocation int    `json:"is_primary_location"` // 0 or 1 from Shiprocket API
}

// IsPrimary returns true if this is the primary pickup location
func (p PickupLocation) IsPrimary() bool {
	return p.IsPrimaryLocation == 1
}

// GetPickupLocations retrieves all pickup locations from Shiprocket
func (s *ShiprocketClient) GetPickupLocations(ctx context.Context) ([]PickupLocation, error) {
	var pickupResp struct {
		Data struct {
			ShippingAddress []PickupLocation `json:"shipping_address"`
		} `json:"data"`
	}
	if _, err := s.doRequest(ctx, "pickup_locations", http.MethodGet, "/v1/external/settings/company/pickup", nil, nil, &pickupResp); err != nil {
		return nil, err
	}
	return pickupResp.Data.ShippingAddress, nil
}

// resolvePickupLocation picks the primary pickup location, falling back to the first one
func (s *ShiprocketClient) resolvePickupLocation(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.pickupLocation
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	locations, err := s.GetPickupLocations(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch pickup locations: %w", err)
	}
	if len(locations) == 0 {
		return "", &APIError{Operation: "pickup_locations", Message: "no pickup locations configured"}
	}

	code := locations[0].PickupCode
	for _, loc := range locations {
		if loc.IsPrimary() {
			code = loc.PickupCode
			break
		}
	}

	s.mu.Lock()
	s.pickupLocation = code
	s.mu.Unlock()
	return code, nil
}

var providerTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02 Jan 2006",
	"Jan 02, 2006",
	time.RFC3339,
}

// ParseProviderTime parses the date formats Shiprocket emits in API responses and webhooks.
// It returns nil for empty or unrecognised values.
func ParseProviderTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range providerTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}

// parseDeliveryDays accepts either a number or a range string like "3-5"
func parseDeliveryDays(value interface{}) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case string:
		var days int
		if _, err := fmt.Sscanf(v, "%d", &days); err == nil {
			return days
		}
	}
	return 0
}

// providerMessage extracts the human message from an error body
func providerMessage(body []byte) string {
	var parsed struct {
		Message string                 `json:"message"`
		Errors  map[string]interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if len(parsed.Errors) > 0 {
			details, _ := json.Marshal(parsed.Errors)
			return parsed.Message + " " + string(details)
		}
		return parsed.Message
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyLength {
		text = text[:maxErrorBodyLength]
	}
	return text
}
