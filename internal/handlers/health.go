package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConnectionChecker reports whether an optional dependency is connected
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db     *gorm.DB
	events ConnectionChecker
}

// NewHealthHandler creates a new health handler. events may be nil when NATS is not configured.
func NewHealthHandler(db *gorm.DB, events ConnectionChecker) *HealthHandler {
	return &HealthHandler{db: db, events: events}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "fulfillment-service",
	})
}

// Ready handles GET /ready. Only the database gates readiness; events are reported.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
			"events": h.eventsStatus(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"events": h.eventsStatus(),
	})
}

func (h *HealthHandler) eventsStatus() string {
	switch {
	case h.events == nil:
		return "disabled"
	case h.events.IsConnected():
		return "connected"
	default:
		return "disconnected"
	}
}
