package travel

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/domain/geo"

	"github.com/stretchr/testify/require"
)

func TestCheapTravelTime(t *testing.T) {
	p := NewCheapProvider()
	a := geo.Point{Lat: -33.45, Lng: -70.66}
	b := geo.Point{Lat: -33.46, Lng: -70.65}

	min, err := p.TravelTime(context.Background(), a, b, time.Now())
	require.NoError(t, err)
	require.Greater(t, min, 0.0)

	// formula check: road km at 30 km/h
	require.InDelta(t, geo.RoadDistanceKM(a, b)/geo.AvgSpeedKMH*60, min, 1e-9)

	same, err := p.TravelTime(context.Background(), a, a, time.Now())
	require.NoError(t, err)
	require.Zero(t, same)
}

func TestCheapMatrix(t *testing.T) {
	p := NewCheapProvider()
	points := []geo.Point{
		{Lat: -33.45, Lng: -70.66},
		{Lat: -33.46, Lng: -70.65},
		{Lat: -33.44, Lng: -70.67},
	}

	minutes, meters, err := p.Matrix(context.Background(), points)
	require.NoError(t, err)
	require.Len(t, minutes, 3)
	require.Len(t, meters, 3)

	for i := range points {
		require.Len(t, minutes[i], 3)
		require.Zero(t, minutes[i][i])
		require.Zero(t, meters[i][i])
		for j := range points {
			// haversine is symmetric, so the cheap matrix is too
			require.InDelta(t, minutes[i][j], minutes[j][i], 1e-9)
			require.InDelta(t, meters[i][j], meters[j][i], 1e-9)
			if i != j {
				require.Greater(t, minutes[i][j], 0.0)
			}
		}
	}
}

func TestCheapOptimizeWaypointsIsIdentity(t *testing.T) {
	p := NewCheapProvider()
	wps := []geo.Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}, {Lat: 3, Lng: 3}}

	order, err := p.OptimizeWaypoints(context.Background(), geo.Point{}, wps, geo.Point{})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, order)
}
