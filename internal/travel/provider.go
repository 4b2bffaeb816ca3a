package travel

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/domain/geo"
)

// Provider supplies travel times between coordinates. The planner receives a
// Provider by composition and never inspects which variant it got.
type Provider interface {
	// TravelTime returns driving minutes from origin to destination.
	TravelTime(ctx context.Context, origin, destination geo.Point, departAt time.Time) (float64, error)

	// Matrix returns pairwise travel minutes and meters over points.
	// minutes[i][j] is the cost of going from points[i] to points[j].
	Matrix(ctx context.Context, points []geo.Point) (minutes [][]float64, meters [][]float64, err error)

	// OptimizeWaypoints asks the provider for its preferred visiting order of
	// waypoints between origin and destination, as indices into waypoints.
	OptimizeWaypoints(ctx context.Context, origin geo.Point, waypoints []geo.Point, destination geo.Point) ([]int, error)

	// Name identifies the provider in logs.
	Name() string
}

var ErrUnavailable = errors.New("travel time provider unavailable")
