package services

import (
	"math"
	"regexp"
	"strings"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/models"
)

const (
	minParcelWeightKg = 0.5
	perUnitWeightKg   = 0.1
)

var postalCodePattern = regexp.MustCompile(`^\d{6}$`)

// ComputeWeight returns the billable weight in kg: max(0.5, units × 0.1)
func ComputeWeight(items []models.OrderItem) float64 {
	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	weight := math.Round(float64(units)*perUnitWeightKg*100) / 100
	return math.Max(minParcelWeightKg, weight)
}

// ValidateShippable checks everything the carrier rejects structurally and
// returns every violation, not just the first.
func ValidateShippable(address models.Address, items []models.OrderItem, totalAmount float64, customerEmail string) []Violation {
	var violations []Violation
	add := func(field, message string) {
		violations = append(violations, Violation{Field: field, Message: message})
	}

	required := []struct {
		field string
		value string
	}{
		{"shippingAddress.fullName", address.FullName},
		{"shippingAddress.addressLine1", address.AddressLine1},
		{"shippingAddress.city", address.City},
		{"shippingAddress.state", address.State},
		{"shippingAddress.country", address.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			add(r.field, "is required")
		}
	}

	if !postalCodePattern.MatchString(strings.TrimSpace(address.PostalCode)) {
		add("shippingAddress.postalCode", "must be exactly 6 digits")
	}
	if _, ok := carriers.NormalizePhone(address.Phone); !ok {
		add("shippingAddress.phone", "must contain a valid 10-digit number")
	}
	if len(items) == 0 {
		add("items", "must not be empty")
	}
	if totalAmount <= 0 {
		add("totalAmount", "must be greater than zero")
	}
	if strings.TrimSpace(customerEmail) == "" {
		add("customerEmail", "is required")
	}

	return violations
}

// validateOrder runs ValidateShippable over an order
func validateOrder(order *models.Order) error {
	if violations := ValidateShippable(order.ShippingAddress, order.Items, order.TotalAmount, order.CustomerEmail); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
