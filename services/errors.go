package services

import "errors"

var (
	// ErrNotFound is returned when the referenced order does not exist
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when the order's current state does not permit the change
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation is returned for malformed mutation input
	ErrValidation = errors.New("validation failed")
	// ErrAgentNotFound is returned when the delivery agent does not exist
	ErrAgentNotFound = errors.New("delivery agent not found")
	// ErrInvalidRole is returned when the referenced admin is not a delivery agent
	ErrInvalidRole = errors.New("admin is not a delivery agent")
	// ErrDuplicateOrder is returned when an order with the same ID already exists
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrWrongKind is returned when an operation does not apply to the order kind
	ErrWrongKind = errors.New("operation not supported for this order type")
)
