package address

import (
	"errors"
	"strings"
	"time"

	"dispatch/internal/domain/geo"
)

// GeocodeStatus tracks whether a delivery address has usable coordinates.
type GeocodeStatus string

const (
	GeocodePending GeocodeStatus = "PENDING"
	GeocodeSuccess GeocodeStatus = "SUCCESS"
	GeocodeFailed  GeocodeStatus = "FAILED"
	GeocodeManual  GeocodeStatus = "MANUAL"
)

var ErrInvalidGeocodeStatus = errors.New("invalid geocode status")

// ParseGeocodeStatus normalizes and validates a geocode status string.
func ParseGeocodeStatus(s string) (GeocodeStatus, error) {
	st := GeocodeStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st.Valid() {
		return st, nil
	}
	return "", ErrInvalidGeocodeStatus
}

// Valid reports whether the status is one of the allowed constants.
func (s GeocodeStatus) Valid() bool {
	switch s {
	case GeocodePending, GeocodeSuccess, GeocodeFailed, GeocodeManual:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s GeocodeStatus) String() string { return string(s) }

// Address is the domain entity corresponding to the `addresses` table.
// Addresses are shared between routes; a stop references one by id.
type Address struct {
	ID              string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Street          string
	City            string
	FullAddress     string
	Point           *geo.Point // nil until geocoded or set manually
	GeocodeStatus   GeocodeStatus
	CustomerName    *string
	CustomerPhone   *string
	CustomerRUT     *string
	ExternalOrderID *string
	PaymentMethod   *string
}

var ErrStreetRequired = errors.New("street is required")

// NewAddress constructs an address pending geocoding.
func NewAddress(street, city, fullAddress string) (*Address, error) {
	if street = strings.TrimSpace(street); street == "" {
		return nil, ErrStreetRequired
	}
	now := time.Now().UTC()
	return &Address{
		CreatedAt:     now,
		UpdatedAt:     now,
		Street:        street,
		City:          strings.TrimSpace(city),
		FullAddress:   strings.TrimSpace(fullAddress),
		GeocodeStatus: GeocodePending,
	}, nil
}

// SetCoordinates stores geocoder output (or a manual pin) and flips the status.
func (a *Address) SetCoordinates(p geo.Point, status GeocodeStatus) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if status != GeocodeSuccess && status != GeocodeManual {
		return ErrInvalidGeocodeStatus
	}
	a.Point = &p
	a.GeocodeStatus = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Geocoded reports whether the address has usable coordinates.
func (a *Address) Geocoded() bool {
	return a.Point != nil && (a.GeocodeStatus == GeocodeSuccess || a.GeocodeStatus == GeocodeManual)
}
