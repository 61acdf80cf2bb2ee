package services

import (
	"errors"
	"fmt"
	"strings"

	"fulfillment-service/internal/carriers"
)

// Violation is a single failed validation rule
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in a payload.
// It is always returned before any carrier call.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AlreadyExistsError is returned when an idempotency guard trips
type AlreadyExistsError struct {
	Resource string
	ID       string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists for %s", e.Resource, e.ID)
}

// ProviderError is a non-success answer or transport failure from the carrier
type ProviderError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("carrier %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("carrier %s failed: %s", e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned for unknown order or return references
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// PreconditionError is returned when the record is not in a state that allows the operation
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// newProviderError wraps a carrier failure, keeping the provider's status and message
func newProviderError(operation string, err error) *ProviderError {
	pe := &ProviderError{Operation: operation, Message: err.Error(), Err: err}
	var apiErr *carriers.APIError
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		pe.Message = apiErr.Message
	}
	return pe
}
