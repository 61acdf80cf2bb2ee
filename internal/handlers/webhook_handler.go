package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/services"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Shiprocket-Signature"

// WebhookHandler receives carrier tracking pushes
type WebhookHandler struct {
	tracking services.TrackingService
	secret   string
	logger   *logrus.Entry
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables signature checks.
func NewWebhookHandler(tracking services.TrackingService, secret string, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		tracking: tracking,
		secret:   secret,
		logger:   logger.WithField("component", "webhook_handler"),
	}
}

// ShiprocketWebhookPayload represents the Shiprocket webhook payload
type ShiprocketWebhookPayload struct {
	AWB           string `json:"awb"`
	CourierName   string `json:"courier_name"`
	CurrentStatus string `json:"current_status"`
	OrderID       string `json:"order_id"`
	EDD           string `json:"etd"` // Estimated delivery date
	Scans         []struct {
		Location string `json:"location"`
		Activity string `json:"activity"`
		Date     string `json:"date"`
		Status   string `json:"status"`
	} `json:"scans"`
}

// verifyWebhookSignature verifies the HMAC-SHA256 signature
func verifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return true // Skip verification if no secret configured
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// ShiprocketWebhook handles POST /webhooks/shiprocket
func (h *WebhookHandler) ShiprocketWebhook(c *gin.Context) {
	// Read raw body for signature verification
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: "failed to read request body",
		})
		return
	}

	if !verifyWebhookSignature(body, c.GetHeader(SignatureHeader), h.secret) {
		h.logger.Warn("Shiprocket webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "INVALID_SIGNATURE",
			Message: "Invalid webhook signature",
		})
		return
	}

	var payload ShiprocketWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	update := services.WebhookUpdate{
		AWB:           payload.AWB,
		CurrentStatus: payload.CurrentStatus,
		EDD:           carriers.ParseProviderTime(payload.EDD),
	}
	for _, scan := range payload.Scans {
		date := carriers.ParseProviderTime(scan.Date)
		if date == nil {
			continue
		}
		update.Scans = append(update.Scans, carriers.Scan{
			Date:     *date,
			Status:   scan.Status,
			Activity: scan.Activity,
			Location: scan.Location,
		})
	}

	log := h.logger.WithFields(logrus.Fields{
		"awb":            payload.AWB,
		"current_status": payload.CurrentStatus,
	})

	result, err := h.tracking.ApplyWebhook(c.Request.Context(), update)
	if err != nil {
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			// acknowledged so the carrier stops retrying
			log.Info("Webhook for untracked AWB ignored")
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "AWB not tracked",
			})
			return
		}
		respondError(c, log, err)
		return
	}

	log.WithFields(logrus.Fields{
		"target":  result.Target,
		"applied": result.Applied,
	}).Info("Shiprocket webhook processed")

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    result,
		Message: stringPtr("Webhook processed successfully"),
	})
}
