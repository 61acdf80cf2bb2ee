package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/models"
)

// EventPublisher emits fulfillment lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) error
	PublishReturnEvent(ctx context.Context, eventType string, ret *models.Return) error
}

func publishOrder(ctx context.Context, publisher EventPublisher, logger *logrus.Entry, eventType string, order *models.Order) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishOrderEvent(ctx, eventType, order); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("Failed to publish fulfillment event")
	}
}

func publishReturn(ctx context.Context, publisher EventPublisher, logger *logrus.Entry, eventType string, ret *models.Return) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishReturnEvent(ctx, eventType, ret); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"return_id":  ret.ID,
		}).Warn("Failed to publish fulfillment event")
	}
}
