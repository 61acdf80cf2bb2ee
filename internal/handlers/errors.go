package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/services"
)

// respondError maps service error kinds onto HTTP statuses
func respondError(c *gin.Context, logger *logrus.Entry, err error) {
	var (
		validationErr   *services.ValidationError
		existsErr       *services.AlreadyExistsError
		notFoundErr     *services.NotFoundError
		preconditionErr *services.PreconditionError
		providerErr     *services.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: err.Error(),
			Details: validationErr.Violations,
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "NOT_FOUND",
			Message: err.Error(),
		})
	case errors.As(err, &existsErr):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "ALREADY_EXISTS",
			Message: err.Error(),
		})
	case errors.As(err, &preconditionErr):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "PRECONDITION_FAILED",
			Message: err.Error(),
		})
	case errors.As(err, &providerErr):
		logger.WithError(err).Warn("Carrier request failed")
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "CARRIER_ERROR",
			Message: err.Error(),
			Details: gin.H{"operation": providerErr.Operation, "statusCode": providerErr.StatusCode},
		})
	default:
		logger.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
		})
	}
}

// parseIDParam reads a UUID path parameter, writing a 400 when it is malformed
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "INVALID_ID",
			Message: name + " must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// stringPtr returns a pointer to a string
func stringPtr(s string) *string {
	return &s
}
