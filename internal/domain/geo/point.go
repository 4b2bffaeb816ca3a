package geo

import (
	"errors"
	"math"
)

// Point is a WGS84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewPoint validates ranges and returns a Point.
func NewPoint(lat, lng float64) (Point, error) {
	p := Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate checks that the point lies on the globe.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return ErrInvalidLatitude
	}
	if p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(a, b Point) float64 {
	const R = 6371.0 // Earth radius in km
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dla := (b.Lat - a.Lat) * math.Pi / 180
	dlo := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dla/2)*math.Sin(dla/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dlo/2)*math.Sin(dlo/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// Road travel fallbacks used when no external travel-time provider is consulted.
// Straight-line distance is scaled by RoadFactor and divided by an average urban speed.
const (
	RoadFactor  = 1.35 // km of road per km of crow flight
	AvgSpeedKMH = 30.0
)

// RoadDistanceKM estimates driveable distance between two points.
func RoadDistanceKM(a, b Point) float64 {
	return HaversineKM(a, b) * RoadFactor
}

// TravelMinutes estimates driving time between two points at average urban speed.
func TravelMinutes(a, b Point) float64 {
	return RoadDistanceKM(a, b) / AvgSpeedKMH * 60.0
}
