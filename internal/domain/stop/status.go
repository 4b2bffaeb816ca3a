package stop

import (
	"errors"
	"strings"
)

// Status is a stop status as stored in the `stops.status` column.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInTransit Status = "IN_TRANSIT"
	StatusArrived   Status = "ARRIVED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

var ErrInvalidStatus = errors.New("invalid stop status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed stop status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusInTransit, StatusArrived, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal indicates no further transitions are allowed from this status.
func (status Status) Terminal() bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	if status.Terminal() {
		return false
	}
	switch status {
	case StatusPending:
		return next == StatusInTransit || next == StatusArrived || next.Terminal()
	case StatusInTransit:
		return next == StatusArrived || next.Terminal()
	case StatusArrived:
		return next.Terminal()
	default:
		return false
	}
}

// PaymentStatus is the per-stop collection state.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

var ErrInvalidPaymentStatus = errors.New("invalid stop payment status")

// ParsePaymentStatus normalizes and validates a payment status string.
func ParsePaymentStatus(in string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToUpper(strings.TrimSpace(in)))
	switch st {
	case PaymentPending, PaymentPartial, PaymentPaid:
		return st, nil
	default:
		return "", ErrInvalidPaymentStatus
	}
}

// String returns the string representation of the payment status.
func (status PaymentStatus) String() string { return string(status) }
