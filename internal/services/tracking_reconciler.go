package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/events"
	"fulfillment-service/internal/metrics"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
)

// TrackingService reconciles carrier tracking data into local orders and returns
type TrackingService interface {
	UpdateTrackingInfo(ctx context.Context, orderID uuid.UUID) (*SyncResult, error)
	BulkUpdateTracking(ctx context.Context) (*BulkSyncResult, error)
	ApplyWebhook(ctx context.Context, update WebhookUpdate) (*WebhookResult, error)
	UpdateReturnTracking(ctx context.Context, returnID uuid.UUID) (*ReturnSyncResult, error)
}

// SyncResult is the before/after view of one order reconciliation
type SyncResult struct {
	OrderID                uuid.UUID             `json:"orderId"`
	CarrierStatus          string                `json:"carrierStatus,omitempty"`
	PreviousShippingStatus models.ShippingStatus `json:"previousShippingStatus"`
	ShippingStatus         models.ShippingStatus `json:"shippingStatus"`
	PreviousOrderStatus    models.OrderStatus    `json:"previousOrderStatus"`
	OrderStatus            models.OrderStatus    `json:"orderStatus"`
	NewEvents              int                   `json:"newEvents"`
	NoUpdate               bool                  `json:"noUpdate"`
	Message                string                `json:"message,omitempty"`
}

// StatusChanged reports whether either status moved
func (r *SyncResult) StatusChanged() bool {
	return r.PreviousShippingStatus != r.ShippingStatus || r.PreviousOrderStatus != r.OrderStatus
}

// BulkSyncFailure names one order that failed during a bulk refresh
type BulkSyncFailure struct {
	OrderID uuid.UUID `json:"orderId"`
	Error   string    `json:"error"`
}

// BulkSyncResult aggregates a bulk refresh
type BulkSyncResult struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Failures   []BulkSyncFailure `json:"failures,omitempty"`
}

// ReturnSyncResult is the before/after view of one return reconciliation
type ReturnSyncResult struct {
	ReturnID       uuid.UUID           `json:"returnId"`
	CarrierStatus  string              `json:"carrierStatus,omitempty"`
	PreviousStatus models.ReturnStatus `json:"previousStatus"`
	Status         models.ReturnStatus `json:"status"`
	NoUpdate       bool                `json:"noUpdate"`
	Message        string              `json:"message,omitempty"`
}

// WebhookUpdate is a tracking push from the carrier
type WebhookUpdate struct {
	AWB           string
	CurrentStatus string
	EDD           *time.Time
	Scans         []carriers.Scan
}

// WebhookResult names the record a webhook was applied to
type WebhookResult struct {
	Target  string    `json:"target"`
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Applied bool      `json:"applied"`
}

const (
	noUpdateMessage    = "no update available"
	reconcileLockTTL   = 2 * time.Minute
	defaultSyncWorkers = 5
)

type statusPair struct {
	shipping models.ShippingStatus
	order    models.OrderStatus
}

var carrierStatusTable = map[string]statusPair{
	"delivered":        {models.ShippingStatusDelivered, models.OrderStatusDelivered},
	"out for delivery": {models.ShippingStatusShipped, models.OrderStatusShipped},
	"in transit":       {models.ShippingStatusShipped, models.OrderStatusShipped},
	"picked up":        {models.ShippingStatusShipped, models.OrderStatusShipped},
	"cancelled":        {models.ShippingStatusCancelled, models.OrderStatusCancelled},
	"canceled":         {models.ShippingStatusCancelled, models.OrderStatusCancelled},
}

// MapCarrierStatus maps a carrier status string to (shipping, order) statuses.
// ok is false for anything outside the table.
func MapCarrierStatus(raw string) (models.ShippingStatus, models.OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if pair, ok := carrierStatusTable[key]; ok {
		return pair.shipping, pair.order, true
	}
	if strings.HasPrefix(key, "rto") {
		return models.ShippingStatusCancelled, models.OrderStatusCancelled, true
	}
	return "", "", false
}

var returnStatusTable = map[string]models.ReturnStatus{
	"picked up":        models.ReturnStatusInTransit,
	"in transit":       models.ReturnStatusInTransit,
	"out for delivery": models.ReturnStatusInTransit,
	"delivered":        models.ReturnStatusReturnedToSeller,
	"cancelled":        models.ReturnStatusCancelled,
	"canceled":         models.ReturnStatusCancelled,
}

// MapReturnCarrierStatus maps a carrier status string for a reverse shipment
func MapReturnCarrierStatus(raw string) (models.ReturnStatus, bool) {
	status, ok := returnStatusTable[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

// TrackingReconciler implements TrackingService
type TrackingReconciler struct {
	orders    repository.OrderRepository
	returns   repository.ReturnRepository
	client    carriers.LogisticsClient
	locker    repository.Locker
	publisher EventPublisher
	workers   int
	logger    *logrus.Entry
}

var _ TrackingService = (*TrackingReconciler)(nil)

// NewTrackingReconciler creates a new tracking reconciler.
// locker and publisher may be nil; workers caps concurrent carrier calls in bulk runs.
func NewTrackingReconciler(
	orders repository.OrderRepository,
	returns repository.ReturnRepository,
	client carriers.LogisticsClient,
	locker repository.Locker,
	publisher EventPublisher,
	workers int,
	logger *logrus.Logger,
) *TrackingReconciler {
	if locker == nil {
		locker = repository.NoopLocker{}
	}
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	return &TrackingReconciler{
		orders:    orders,
		returns:   returns,
		client:    client,
		locker:    locker,
		publisher: publisher,
		workers:   workers,
		logger:    logger.WithField("component", "tracking_reconciler"),
	}
}

// UpdateTrackingInfo pulls the carrier's tracking data for the order and merges it.
// When the carrier has nothing for the AWB the result has NoUpdate set and nothing is written.
func (r *TrackingReconciler) UpdateTrackingInfo(ctx context.Context, orderID uuid.UUID) (*SyncResult, error) {
	release, err := r.lockOrder(ctx, orderID)
	if err != nil {
		metrics.RecordTrackingSync(metrics.OutcomeSkipped)
		return nil, err
	}
	defer release()

	order, err := loadOrder(ctx, r.orders, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Shipping.HasAWB() {
		return nil, &PreconditionError{Reason: "order has no AWB to track"}
	}

	tracking, err := r.client.TrackByAWB(ctx, order.Shipping.AWBCode)
	if err != nil {
		metrics.RecordTrackingSync(metrics.OutcomeFailure)
		return nil, newProviderError("track awb", err)
	}

	result := &SyncResult{
		OrderID:                order.ID,
		PreviousShippingStatus: order.Shipping.Status,
		ShippingStatus:         order.Shipping.Status,
		PreviousOrderStatus:    order.Status,
		OrderStatus:            order.Status,
	}
	if !tracking.HasData() {
		metrics.RecordTrackingSync(metrics.OutcomeNoUpdate)
		result.NoUpdate = true
		result.Message = noUpdateMessage
		return result, nil
	}

	result.CarrierStatus = tracking.CurrentStatus
	result.NewEvents = applyTracking(order, tracking.CurrentStatus, tracking.EDD, tracking.Scans)
	result.ShippingStatus = order.Shipping.Status
	result.OrderStatus = order.Status

	if err := r.orders.SaveOrder(ctx, order); err != nil {
		metrics.RecordTrackingSync(metrics.OutcomeFailure)
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	metrics.RecordTrackingSync(metrics.OutcomeSuccess)
	r.logger.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"carrier_status": tracking.CurrentStatus,
		"status":         order.Shipping.Status,
		"new_events":     result.NewEvents,
	}).Debug("Tracking reconciled")

	r.publishTransition(ctx, result, order)
	return result, nil
}

func (r *TrackingReconciler) publishTransition(ctx context.Context, result *SyncResult, order *models.Order) {
	if result.PreviousShippingStatus == result.ShippingStatus {
		return
	}
	switch result.ShippingStatus {
	case models.ShippingStatusDelivered:
		publishOrder(ctx, r.publisher, r.logger, events.ShipmentDelivered, order)
	case models.ShippingStatusCancelled:
		publishOrder(ctx, r.publisher, r.logger, events.ShipmentCancelled, order)
	}
}

// BulkUpdateTracking reconciles every tracked order through a bounded worker pool.
// Each order succeeds or fails on its own.
func (r *TrackingReconciler) BulkUpdateTracking(ctx context.Context) (*BulkSyncResult, error) {
	ids, err := r.orders.FindOrdersNeedingTracking(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for tracking: %w", err)
	}

	result := &BulkSyncResult{Total: len(ids)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := r.UpdateTrackingInfo(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, BulkSyncFailure{OrderID: id, Error: err.Error()})
				return nil
			}
			result.Successful++
			return nil
		})
	}
	_ = g.Wait()

	r.logger.WithFields(logrus.Fields{
		"total":      result.Total,
		"successful": result.Successful,
		"failed":     result.Failed,
	}).Info("Bulk tracking sync finished")

	return result, nil
}

// lockOrder takes the per-order reconcile lock. A Redis failure degrades to
// running unlocked; a lock held elsewhere is a PreconditionError.
func (r *TrackingReconciler) lockOrder(ctx context.Context, orderID uuid.UUID) (func(), error) {
	release, acquired, err := r.locker.Acquire(ctx, "tracking:"+orderID.String(), reconcileLockTTL)
	switch {
	case err != nil:
		r.logger.WithError(err).WithField("order_id", orderID).Warn("Reconcile lock unavailable, continuing unlocked")
		return func() {}, nil
	case !acquired:
		return nil, &PreconditionError{Reason: "tracking sync already in progress"}
	default:
		return release, nil
	}
}

// ApplyWebhook applies a pushed tracking update to the order or return holding the AWB
func (r *TrackingReconciler) ApplyWebhook(ctx context.Context, update WebhookUpdate) (*WebhookResult, error) {
	if strings.TrimSpace(update.AWB) == "" {
		return nil, &ValidationError{Violations: []Violation{{Field: "awb", Message: "is required"}}}
	}

	order, err := r.orders.GetOrderByAWB(ctx, update.AWB)
	switch {
	case err == nil:
		release, err := r.lockOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		defer release()

		// state read before the lock may be stale
		if order, err = loadOrder(ctx, r.orders, order.ID); err != nil {
			return nil, err
		}
		before := order.Shipping.Status
		result := &SyncResult{
			OrderID:                order.ID,
			PreviousShippingStatus: before,
			PreviousOrderStatus:    order.Status,
		}
		applyTracking(order, update.CurrentStatus, update.EDD, update.Scans)
		result.ShippingStatus = order.Shipping.Status
		result.OrderStatus = order.Status
		if err := r.orders.SaveOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to save order: %w", err)
		}
		r.publishTransition(ctx, result, order)
		return &WebhookResult{
			Target:  "order",
			ID:      order.ID,
			Status:  string(order.Shipping.Status),
			Applied: before != order.Shipping.Status,
		}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	ret, err := r.returns.GetReturnByAWB(ctx, update.AWB)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "shipment", ID: update.AWB}
		}
		return nil, fmt.Errorf("failed to load return: %w", err)
	}

	applied := applyReturnStatus(ret, update.CurrentStatus)
	if applied {
		if err := r.returns.SaveReturn(ctx, ret); err != nil {
			return nil, fmt.Errorf("failed to save return: %w", err)
		}
	}
	return &WebhookResult{Target: "return", ID: ret.ID, Status: string(ret.Status), Applied: applied}, nil
}

// UpdateReturnTracking polls the carrier for a return's AWB and advances the
// return when the transition table allows it.
func (r *TrackingReconciler) UpdateReturnTracking(ctx context.Context, returnID uuid.UUID) (*ReturnSyncResult, error) {
	ret, err := loadReturn(ctx, r.returns, returnID)
	if err != nil {
		return nil, err
	}
	if !ret.HasAWB() {
		return nil, &PreconditionError{Reason: "return has no AWB to track"}
	}

	tracking, err := r.client.TrackByAWB(ctx, ret.ShiprocketReturnAWB)
	if err != nil {
		return nil, newProviderError("track awb", err)
	}

	result := &ReturnSyncResult{ReturnID: ret.ID, PreviousStatus: ret.Status, Status: ret.Status}
	if !tracking.HasData() {
		result.NoUpdate = true
		result.Message = noUpdateMessage
		return result, nil
	}

	result.CarrierStatus = tracking.CurrentStatus
	if applyReturnStatus(ret, tracking.CurrentStatus) {
		if err := r.returns.SaveReturn(ctx, ret); err != nil {
			return nil, fmt.Errorf("failed to save return: %w", err)
		}
		result.Status = ret.Status
	}
	return result, nil
}

// applyTracking merges carrier data into the order and returns the number of new scans.
// Unmapped statuses and moves outside the shipping transition table keep their statuses.
func applyTracking(order *models.Order, currentStatus string, edd *time.Time, scans []carriers.Scan) int {
	if shipping, orderStatus, ok := MapCarrierStatus(currentStatus); ok && models.CanMoveShippingStatus(order.Shipping.Status, shipping) {
		order.Shipping.Status = shipping
		order.Status = orderStatus
	}

	added := mergeScans(order, scans)

	if edd != nil {
		eta := *edd
		order.Shipping.ETA = &eta
	}
	now := time.Now()
	order.Shipping.LastUpdateAt = &now
	return added
}

// mergeScans appends scans not already in the history, keyed by timestamp+activity
func mergeScans(order *models.Order, scans []carriers.Scan) int {
	seen := make(map[string]struct{}, len(order.TrackingHistory))
	for _, e := range order.TrackingHistory {
		seen[e.DedupKey()] = struct{}{}
	}

	added := 0
	for _, scan := range scans {
		event := models.TrackingEvent{
			OrderID:    order.ID,
			Timestamp:  scan.Date,
			Activity:   scan.Activity,
			Location:   scan.Location,
			StatusCode: scan.Status,
		}
		key := event.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		order.TrackingHistory = append(order.TrackingHistory, event)
		added++
	}

	sort.SliceStable(order.TrackingHistory, func(i, j int) bool {
		return order.TrackingHistory[i].Timestamp.Before(order.TrackingHistory[j].Timestamp)
	})
	if n := len(order.TrackingHistory); n > 0 && order.TrackingHistory[n-1].Location != "" {
		order.Shipping.CurrentLocation = order.TrackingHistory[n-1].Location
	}
	return added
}

// applyReturnStatus moves the return to the mapped status if the transition is allowed
func applyReturnStatus(ret *models.Return, carrierStatus string) bool {
	next, ok := MapReturnCarrierStatus(carrierStatus)
	if !ok || !models.CanTransitionReturnStatus(ret.Status, next) {
		return false
	}
	ret.Status = next
	return true
}
