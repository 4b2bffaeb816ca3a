package travel

import (
	"context"
	"time"

	"dispatch/internal/domain/geo"
)

// CheapProvider estimates travel times from straight-line distance scaled by a
// road factor and a fixed urban average speed. It never performs I/O, so the
// planner can call it for arbitrarily large matrices.
type CheapProvider struct{}

// NewCheapProvider constructs a CheapProvider.
func NewCheapProvider() *CheapProvider {
	return &CheapProvider{}
}

// Name identifies the provider in logs.
func (p *CheapProvider) Name() string { return "cheap" }

// TravelTime returns estimated driving minutes from origin to destination.
// departAt is ignored; the estimate is time-of-day independent.
func (p *CheapProvider) TravelTime(_ context.Context, origin, destination geo.Point, _ time.Time) (float64, error) {
	return geo.TravelMinutes(origin, destination), nil
}

// Matrix returns pairwise travel minutes and meters over points.
func (p *CheapProvider) Matrix(_ context.Context, points []geo.Point) ([][]float64, [][]float64, error) {
	n := len(points)
	minutes := make([][]float64, n)
	meters := make([][]float64, n)
	for i := range points {
		minutes[i] = make([]float64, n)
		meters[i] = make([]float64, n)
		for j := range points {
			if i == j {
				continue
			}
			km := geo.RoadDistanceKM(points[i], points[j])
			meters[i][j] = km * 1000
			minutes[i][j] = km / geo.AvgSpeedKMH * 60
		}
	}
	return minutes, meters, nil
}

// OptimizeWaypoints returns the identity order; the planner's own search is
// expected to do the work when this provider is in play.
func (p *CheapProvider) OptimizeWaypoints(_ context.Context, _ geo.Point, waypoints []geo.Point, _ geo.Point) ([]int, error) {
	order := make([]int, len(waypoints))
	for i := range order {
		order[i] = i
	}
	return order, nil
}
