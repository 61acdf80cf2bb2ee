package models

import "fmt"

// ValidShippingTransitions defines the forward-shipment state machine.
// Flow: pending → processing → shipped → delivered; cancelled from any pre-delivered state.
// pending_courier and pending_balance are parking states retried back into shipped.
// processing → delivered covers tracking that skipped the shipped scans.
var ValidShippingTransitions = map[ShippingStatus][]ShippingStatus{
	ShippingStatusPending:        {ShippingStatusProcessing, ShippingStatusCancelled},
	ShippingStatusProcessing:     {ShippingStatusShipped, ShippingStatusDelivered, ShippingStatusPendingCourier, ShippingStatusPendingBalance, ShippingStatusCancelled},
	ShippingStatusPendingCourier: {ShippingStatusShipped, ShippingStatusPendingBalance, ShippingStatusCancelled},
	ShippingStatusPendingBalance: {ShippingStatusShipped, ShippingStatusPendingCourier, ShippingStatusCancelled},
	ShippingStatusShipped:        {ShippingStatusDelivered, ShippingStatusCancelled},
	ShippingStatusDelivered:      {}, // Terminal state
	ShippingStatusCancelled:      {}, // Terminal state
}

// ValidReturnTransitions defines the reverse-shipment state machine.
// completed is only reached through refund completion.
var ValidReturnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusRequested:        {ReturnStatusPickupScheduled, ReturnStatusInTransit, ReturnStatusReceived, ReturnStatusCancelled},
	ReturnStatusPickupScheduled:  {ReturnStatusInTransit, ReturnStatusReturnedToSeller, ReturnStatusReceived, ReturnStatusCancelled},
	ReturnStatusInTransit:        {ReturnStatusReturnedToSeller, ReturnStatusReceived},
	ReturnStatusReturnedToSeller: {ReturnStatusReceived, ReturnStatusCompleted},
	ReturnStatusReceived:         {ReturnStatusCompleted},
	ReturnStatusCompleted:        {}, // Terminal state
	ReturnStatusCancelled:        {}, // Terminal state
}

// IsTerminal reports whether no further forward-shipment transition exists
func (s ShippingStatus) IsTerminal() bool {
	return s == ShippingStatusDelivered || s == ShippingStatusCancelled
}

// CanTransitionShippingStatus checks if a transition from one shipping status to another is valid
func CanTransitionShippingStatus(from, to ShippingStatus) bool {
	validTransitions, exists := ValidShippingTransitions[from]
	if !exists {
		return false
	}
	for _, validTo := range validTransitions {
		if validTo == to {
			return true
		}
	}
	return false
}

// CanMoveShippingStatus is CanTransitionShippingStatus that also accepts staying put
func CanMoveShippingStatus(from, to ShippingStatus) bool {
	return from == to || CanTransitionShippingStatus(from, to)
}

// CanTransitionReturnStatus checks if a transition from one return status to another is valid
func CanTransitionReturnStatus(from, to ReturnStatus) bool {
	validTransitions, exists := ValidReturnTransitions[from]
	if !exists {
		return false
	}
	for _, validTo := range validTransitions {
		if validTo == to {
			return true
		}
	}
	return false
}

// ValidateReturnStatusTransition returns an error if the transition is invalid
func ValidateReturnStatusTransition(from, to ReturnStatus) error {
	if !CanTransitionReturnStatus(from, to) {
		return fmt.Errorf("invalid return status transition from %s to %s", from, to)
	}
	return nil
}
