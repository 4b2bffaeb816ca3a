package geo

import (
	"errors"
	"strings"
	"time"
)

// TrackingPoint is one sample of a driver's position while a route runs.
// Rows are append-only; history is never rewritten.
type TrackingPoint struct {
	ID             string
	RouteID        string
	Point          Point
	HeadingDegrees *float64
	SpeedKMH       *float64
	AccuracyMeters *float64
	RecordedAt     time.Time
}

var ErrEmptyRouteID = errors.New("route id cannot be empty")

// NewTrackingPoint validates and constructs a tracking sample recorded "now".
func NewTrackingPoint(routeID string, p Point, heading, speed, accuracy *float64) (*TrackingPoint, error) {
	if routeID = strings.TrimSpace(routeID); routeID == "" {
		return nil, ErrEmptyRouteID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &TrackingPoint{
		RouteID:        routeID,
		Point:          p,
		HeadingDegrees: heading,
		SpeedKMH:       speed,
		AccuracyMeters: accuracy,
		RecordedAt:     time.Now().UTC(),
	}, nil
}
