package route

import (
	"errors"
	"strings"
	"time"

	"dispatch/internal/domain/geo"
)

// Route is the domain entity corresponding to the `routes` table.
type Route struct {
	// Identity & audit
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Core state
	Status        Status
	ScheduledDate *time.Time
	DepartureTime *string // "HH:MM"

	// Origin
	DepotID       *string
	OriginPoint   *geo.Point
	OriginAddress *string

	// Assignment & lifecycle timestamps
	AssignedDriverID *string
	SentAt           *time.Time
	LoadedAt         *time.Time
	StartedAt        *time.Time
	ActualStartTime  *time.Time
	PausedAt         *time.Time
	CompletedAt      *time.Time

	// Optimization results
	TotalDistanceKM  *float64
	TotalDurationMin *float64
	OptimizedAt      *time.Time
	OptimizationHash *string
	DepotReturnTime  *time.Time

	// Live driver telemetry (last-writer-wins)
	DriverPoint      *geo.Point
	DriverLocationAt *time.Time
	DriverHeading    *float64
	DriverSpeed      *float64
}

var (
	ErrNameRequired            = errors.New("route name is required")
	ErrCreatorRequired         = errors.New("route creator is required")
	ErrInvalidStatusTransition = errors.New("invalid route status transition")
	ErrNotOptimized            = errors.New("route must be optimized before it can be sent")
	ErrNoDriverAssigned        = errors.New("route has no assigned driver")
	ErrAlreadySent             = errors.New("route already sent")
	ErrAlreadyStarted          = errors.New("route already started")
	ErrNotInProgress           = errors.New("route is not in progress")
	ErrDriverBusy              = errors.New("driver already has an active route")
)

// NewRoute creates a new route in DRAFT state.
func NewRoute(name, createdBy string) (*Route, error) {
	if name = strings.TrimSpace(name); name == "" {
		return nil, ErrNameRequired
	}
	if createdBy = strings.TrimSpace(createdBy); createdBy == "" {
		return nil, ErrCreatorRequired
	}

	now := time.Now().UTC()
	return &Route{
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusDraft,
	}, nil
}

// MarkOptimized records an optimization pass result on the route.
func (r *Route) MarkOptimized(hash string, distanceKM, durationMin float64) {
	now := time.Now().UTC()
	r.OptimizedAt = &now
	r.OptimizationHash = &hash
	r.TotalDistanceKM = &distanceKM
	r.TotalDurationMin = &durationMin
	r.touch()
}

// Send transitions DRAFT -> SCHEDULED.
// Guards: the route must be optimized, have a driver, and not be sent already.
func (r *Route) Send() error {
	if r.Status != StatusDraft {
		return ErrInvalidStatusTransition
	}
	if r.SentAt != nil {
		return ErrAlreadySent
	}
	if r.OptimizedAt == nil {
		return ErrNotOptimized
	}
	if r.AssignedDriverID == nil || *r.AssignedDriverID == "" {
		return ErrNoDriverAssigned
	}

	now := time.Now().UTC()
	r.SentAt = &now
	r.setStatus(StatusScheduled)
	return nil
}

// Unsend transitions SCHEDULED -> DRAFT, provided the driver never started.
func (r *Route) Unsend() error {
	if r.Status != StatusScheduled {
		return ErrInvalidStatusTransition
	}
	if r.StartedAt != nil {
		return ErrAlreadyStarted
	}

	r.SentAt = nil
	r.LoadedAt = nil
	r.setStatus(StatusDraft)
	return nil
}

// MarkLoaded records the driver's app fetching the route after send.
func (r *Route) MarkLoaded() {
	if r.LoadedAt == nil {
		now := time.Now().UTC()
		r.LoadedAt = &now
		r.touch()
	}
}

// Start transitions SCHEDULED -> IN_PROGRESS at the given instant.
// The one-active-route-per-driver guard is checked by the caller against storage.
func (r *Route) Start(now time.Time) error {
	if r.Status != StatusScheduled {
		if r.Status.Active() {
			return ErrAlreadyStarted
		}
		return ErrInvalidStatusTransition
	}
	if r.SentAt == nil {
		return ErrInvalidStatusTransition
	}

	now = now.UTC()
	r.StartedAt = &now
	r.ActualStartTime = &now
	r.setStatus(StatusInProgress)
	return nil
}

// Pause transitions IN_PROGRESS -> PAUSED.
func (r *Route) Pause() error {
	if r.Status != StatusInProgress {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	r.PausedAt = &now
	r.setStatus(StatusPaused)
	return nil
}

// Resume transitions PAUSED -> IN_PROGRESS.
func (r *Route) Resume() error {
	if r.Status != StatusPaused {
		return ErrInvalidStatusTransition
	}
	r.PausedAt = nil
	r.setStatus(StatusInProgress)
	return nil
}

// Complete transitions IN_PROGRESS -> COMPLETED.
// Callers must have verified that every stop is terminal.
func (r *Route) Complete(now time.Time) error {
	if r.Status != StatusInProgress {
		return ErrInvalidStatusTransition
	}
	now = now.UTC()
	r.CompletedAt = &now
	r.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions any non-terminal status to CANCELLED.
func (r *Route) Cancel() error {
	if r.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	r.setStatus(StatusCancelled)
	return nil
}

// AssignDriver sets or replaces the driver while the route is still a draft.
func (r *Route) AssignDriver(driverID string) error {
	if r.Status != StatusDraft {
		return ErrInvalidStatusTransition
	}
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		r.AssignedDriverID = nil
	} else {
		r.AssignedDriverID = &driverID
	}
	r.touch()
	return nil
}

// UpdateDriverLocation overwrites the live telemetry fields (last writer wins).
func (r *Route) UpdateDriverLocation(p geo.Point, heading, speed *float64, at time.Time) error {
	if r.Status != StatusInProgress {
		return ErrNotInProgress
	}
	if err := p.Validate(); err != nil {
		return err
	}
	at = at.UTC()
	r.DriverPoint = &p
	r.DriverLocationAt = &at
	r.DriverHeading = heading
	r.DriverSpeed = speed
	r.touch()
	return nil
}

// Origin returns the optimization origin: explicit origin point if set, nil otherwise.
func (r *Route) Origin() *geo.Point {
	return r.OriginPoint
}

// ----- internal helpers -----

func (r *Route) setStatus(status Status) {
	r.Status = status
	r.touch()
}

func (r *Route) touch() {
	r.UpdatedAt = time.Now().UTC()
}
