package depot

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"dispatch/internal/domain/geo"
)

// Depot is the fixed origin/return point of a route, from the `depots` table.
type Depot struct {
	ID                    string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	Name                  string
	Address               string
	Point                 geo.Point
	DefaultDepartureTime  string // "HH:MM", local to the depot
	DefaultServiceMinutes int
	ETAWindowBefore       time.Duration // customer window opens this long before the frozen ETA
	ETAWindowAfter        time.Duration
	IsDefault             bool // at most one depot may be the default
	IsActive              bool
}

var (
	ErrNameRequired         = errors.New("depot name is required")
	ErrAddressRequired      = errors.New("depot address is required")
	ErrBadDepartureTime     = errors.New("default departure time must be HH:MM")
	ErrNegativeServiceTime  = errors.New("default service minutes cannot be negative")
	ErrNegativeWindowExtent = errors.New("eta window extents cannot be negative")
)

var departureTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// NewDepot constructs an active, non-default depot.
func NewDepot(name, address string, p geo.Point, departureTime string, serviceMinutes int) (*Depot, error) {
	now := time.Now().UTC()
	d := &Depot{
		CreatedAt:             now,
		UpdatedAt:             now,
		Name:                  strings.TrimSpace(name),
		Address:               strings.TrimSpace(address),
		Point:                 p,
		DefaultDepartureTime:  strings.TrimSpace(departureTime),
		DefaultServiceMinutes: serviceMinutes,
		ETAWindowBefore:       15 * time.Minute,
		ETAWindowAfter:        30 * time.Minute,
		IsActive:              true,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks invariants of the Depot entity.
func (d *Depot) Validate() error {
	if d.Name == "" {
		return ErrNameRequired
	}
	if d.Address == "" {
		return ErrAddressRequired
	}
	if err := d.Point.Validate(); err != nil {
		return err
	}
	if d.DefaultDepartureTime != "" && !departureTimeRe.MatchString(d.DefaultDepartureTime) {
		return ErrBadDepartureTime
	}
	if d.DefaultServiceMinutes < 0 {
		return ErrNegativeServiceTime
	}
	if d.ETAWindowBefore < 0 || d.ETAWindowAfter < 0 {
		return ErrNegativeWindowExtent
	}
	return nil
}
