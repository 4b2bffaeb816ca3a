package stop

import (
	"errors"
	"strings"
	"time"
)

// Stop is the domain entity corresponding to the `stops` table.
// A stop belongs to exactly one route and references a shared address.
type Stop struct {
	// Identity & audit
	ID        string
	RouteID   string
	AddressID string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Ordering & state
	SequenceOrder int // positive, unique within the route, gapless {1..n}
	Status        Status

	// Planning inputs
	EstimatedMinutes int // on-site service time
	Priority         int // 0 = none; higher is more urgent
	TimeWindowStart  *time.Time
	TimeWindowEnd    *time.Time

	// Planning / execution outputs
	EstimatedArrival          *time.Time
	OriginalEstimatedArrival  *time.Time // frozen at route start; never mutated afterwards
	TravelMinutesFromPrevious *float64
	ArrivedAt                 *time.Time
	CompletedAt               *time.Time

	// Proof of delivery
	RequireSignature bool
	RequirePhoto     bool
	SignatureURL     *string
	PhotoURL         *string

	// Payment
	IsPaid        bool
	PaymentStatus PaymentStatus
	PaymentMethod *string
	PaymentAmount *float64

	// Customer / integration
	CustomerRUT     *string
	ExternalOrderID *string
	Notes           *string
	FailureReason   *string
}

var (
	ErrRouteIDRequired         = errors.New("stop route id is required")
	ErrAddressIDRequired       = errors.New("stop address id is required")
	ErrInvalidSequence         = errors.New("sequence order must be positive")
	ErrAlreadyTerminal         = errors.New("stop already in a terminal status")
	ErrNotTerminalStatus       = errors.New("status is not terminal")
	ErrInvalidStatusTransition = errors.New("invalid stop status transition")
	ErrSignatureRequired       = errors.New("signature proof is required to complete this stop")
	ErrPhotoRequired           = errors.New("photo proof is required to complete this stop")
	ErrOriginalETAFrozen       = errors.New("original estimated arrival is already frozen")
)

// NewStop constructs a PENDING stop at the given sequence position.
func NewStop(routeID, addressID string, sequence, serviceMinutes int) (*Stop, error) {
	if routeID = strings.TrimSpace(routeID); routeID == "" {
		return nil, ErrRouteIDRequired
	}
	if addressID = strings.TrimSpace(addressID); addressID == "" {
		return nil, ErrAddressIDRequired
	}
	if sequence <= 0 {
		return nil, ErrInvalidSequence
	}
	if serviceMinutes < 0 {
		serviceMinutes = 0
	}

	now := time.Now().UTC()
	return &Stop{
		RouteID:          routeID,
		AddressID:        addressID,
		CreatedAt:        now,
		UpdatedAt:        now,
		SequenceOrder:    sequence,
		Status:           StatusPending,
		EstimatedMinutes: serviceMinutes,
		PaymentStatus:    PaymentPending,
	}, nil
}

// FreezeOriginalETA sets OriginalEstimatedArrival exactly once, at route start.
func (s *Stop) FreezeOriginalETA(eta time.Time) error {
	if s.OriginalEstimatedArrival != nil {
		return ErrOriginalETAFrozen
	}
	eta = eta.UTC()
	s.OriginalEstimatedArrival = &eta
	s.EstimatedArrival = &eta
	s.touch()
	return nil
}

// SetEstimatedArrival updates the live ETA. The frozen original is untouched.
func (s *Stop) SetEstimatedArrival(eta time.Time) {
	eta = eta.UTC()
	s.EstimatedArrival = &eta
	s.touch()
}

// MarkInTransit transitions PENDING -> IN_TRANSIT.
func (s *Stop) MarkInTransit() error {
	if s.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if !s.Status.CanTransitionTo(StatusInTransit) {
		return ErrInvalidStatusTransition
	}
	s.setStatus(StatusInTransit)
	return nil
}

// MarkArrived records physical arrival at the stop.
func (s *Stop) MarkArrived(at time.Time) error {
	if s.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if !s.Status.CanTransitionTo(StatusArrived) {
		return ErrInvalidStatusTransition
	}
	at = at.UTC()
	s.ArrivedAt = &at
	s.setStatus(StatusArrived)
	return nil
}

// TerminalInput carries the optional artifacts of a terminal transition.
type TerminalInput struct {
	Notes         *string
	FailureReason *string
	SignatureURL  *string
	PhotoURL      *string
}

// Finish moves the stop to a terminal status at the given instant.
// COMPLETED enforces the proof-of-delivery requirements; FAILED and SKIPPED do not.
func (s *Stop) Finish(terminal Status, at time.Time, in TerminalInput) error {
	if !terminal.Terminal() {
		return ErrNotTerminalStatus
	}
	if s.Status.Terminal() {
		return ErrAlreadyTerminal
	}

	// POD artifacts may arrive with the completion call
	if in.SignatureURL != nil && *in.SignatureURL != "" {
		s.SignatureURL = in.SignatureURL
	}
	if in.PhotoURL != nil && *in.PhotoURL != "" {
		s.PhotoURL = in.PhotoURL
	}

	if terminal == StatusCompleted {
		if s.RequireSignature && (s.SignatureURL == nil || *s.SignatureURL == "") {
			return ErrSignatureRequired
		}
		if s.RequirePhoto && (s.PhotoURL == nil || *s.PhotoURL == "") {
			return ErrPhotoRequired
		}
	}

	if in.Notes != nil && *in.Notes != "" {
		s.Notes = in.Notes
	}
	if terminal == StatusFailed && in.FailureReason != nil {
		s.FailureReason = in.FailureReason
	}

	at = at.UTC()
	s.CompletedAt = &at
	s.setStatus(terminal)
	return nil
}

// Open reports whether the stop still awaits the driver.
func (s *Stop) Open() bool {
	return s.Status == StatusPending || s.Status == StatusInTransit || s.Status == StatusArrived
}

// ----- internal helpers -----

func (s *Stop) setStatus(status Status) {
	s.Status = status
	s.touch()
}

func (s *Stop) touch() {
	s.UpdatedAt = time.Now().UTC()
}
