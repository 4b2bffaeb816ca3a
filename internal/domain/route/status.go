package route

import (
	"errors"
	"strings"
)

// Status is a route status as stored in the `routes.status` column.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid route status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed route status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusDraft, StatusScheduled, StatusInProgress, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusDraft:
		return next == StatusScheduled || next == StatusCancelled

	case StatusScheduled:
		// unsend goes back to DRAFT; start goes to IN_PROGRESS
		return next == StatusDraft || next == StatusInProgress || next == StatusCancelled

	case StatusInProgress:
		return next == StatusPaused || next == StatusCompleted || next == StatusCancelled

	case StatusPaused:
		return next == StatusInProgress || next == StatusCancelled

	case StatusCompleted, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Active indicates the route currently occupies its driver.
// A driver may have at most one route in an active status.
func (status Status) Active() bool {
	return status == StatusInProgress || status == StatusPaused
}
