package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	carrierRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_carrier_requests_total",
			Help: "Total number of logistics provider API calls",
		},
		[]string{"operation", "outcome"},
	)

	carrierRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fulfillment_carrier_request_duration_seconds",
			Help:    "Logistics provider API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	shipmentStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_shipment_stages_total",
			Help: "Forward shipment stage outcomes",
		},
		[]string{"stage", "outcome"},
	)

	trackingSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_tracking_sync_total",
			Help: "Tracking reconciliation outcomes per order",
		},
		[]string{"outcome"},
	)

	returnShipmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_return_shipments_total",
			Help: "Best-effort return shipment outcomes",
		},
		[]string{"outcome"},
	)
)

// Outcome label values
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNoUpdate = "no_update"
	OutcomeSkipped  = "skipped"
)

// ObserveCarrierRequest records a provider call started at start
func ObserveCarrierRequest(operation string, start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	carrierRequestsTotal.WithLabelValues(operation, outcome).Inc()
	carrierRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordShipmentStage records the result of create/process/cancel/label
func RecordShipmentStage(stage string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	shipmentStagesTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordTrackingSync records one order reconciliation
func RecordTrackingSync(outcome string) {
	trackingSyncTotal.WithLabelValues(outcome).Inc()
}

// RecordReturnShipment records the secondary phase of a return request
func RecordReturnShipment(outcome string) {
	returnShipmentsTotal.WithLabelValues(outcome).Inc()
}
