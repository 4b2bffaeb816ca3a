package eta

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/stop"

	"github.com/stretchr/testify/require"
)

func TestOnTime(t *testing.T) {
	frozen := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		completedAt time.Time
		original    *time.Time
		want        bool
	}{
		{"no frozen reference", time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC), nil, true},
		{"exactly on time", frozen, &frozen, true},
		{"seven minutes late", frozen.Add(7 * time.Minute), &frozen, true},
		{"exactly at the gate", frozen.Add(15 * time.Minute), &frozen, true},
		{"just past the gate", frozen.Add(15*time.Minute + time.Second), &frozen, false},
		{"twenty five minutes late", frozen.Add(25 * time.Minute), &frozen, false},
		{"early counts too", frozen.Add(-16 * time.Minute), &frozen, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, OnTime(tc.completedAt, tc.original))
		})
	}
}

func newTestStop(t *testing.T, seq int, travelMin float64) *stop.Stop {
	t.Helper()
	s, err := stop.NewStop("route-1", "addr-1", seq, 10)
	require.NoError(t, err)
	s.TravelMinutesFromPrevious = &travelMin
	return s
}

func TestFreezeWalksSchedule(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	stops := []*stop.Stop{
		newTestStop(t, 1, 12),
		newTestStop(t, 2, 8),
		newTestStop(t, 3, 5),
	}

	require.NoError(t, Freeze(stops, start))

	// 10:00 + 12 travel
	require.Equal(t, start.Add(12*time.Minute), *stops[0].OriginalEstimatedArrival)
	// + 10 service + 8 travel
	require.Equal(t, start.Add(30*time.Minute), *stops[1].OriginalEstimatedArrival)
	// + 10 service + 5 travel
	require.Equal(t, start.Add(45*time.Minute), *stops[2].OriginalEstimatedArrival)

	// the live ETA starts out equal to the frozen one
	for _, s := range stops {
		require.Equal(t, *s.OriginalEstimatedArrival, *s.EstimatedArrival)
	}
}

func TestFreezeNeverOverwrites(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s := newTestStop(t, 1, 12)
	require.NoError(t, Freeze([]*stop.Stop{s}, start))
	first := *s.OriginalEstimatedArrival

	// a second freeze (route restart after unsend would be a bug upstream,
	// but the invariant holds regardless)
	require.NoError(t, Freeze([]*stop.Stop{s}, start.Add(2*time.Hour)))
	require.Equal(t, first, *s.OriginalEstimatedArrival)
}

func TestFreezeSkipsTerminalStops(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	done := newTestStop(t, 1, 12)
	require.NoError(t, done.Finish(stop.StatusSkipped, start, stop.TerminalInput{}))
	open := newTestStop(t, 2, 8)

	require.NoError(t, Freeze([]*stop.Stop{done, open}, start))
	require.Nil(t, done.OriginalEstimatedArrival)
	// terminal stop contributes nothing to the walk
	require.Equal(t, start.Add(8*time.Minute), *open.OriginalEstimatedArrival)
}

// fixedProvider returns a constant leg duration.
type fixedProvider struct {
	minutes float64
	calls   int
	err     error
}

func (f *fixedProvider) TravelTime(context.Context, geo.Point, geo.Point, time.Time) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.minutes, nil
}

func (f *fixedProvider) Matrix(context.Context, []geo.Point) ([][]float64, [][]float64, error) {
	return nil, nil, errors.New("not used")
}

func (f *fixedProvider) OptimizeWaypoints(context.Context, geo.Point, []geo.Point, geo.Point) ([]int, error) {
	return nil, errors.New("not used")
}

func (f *fixedProvider) Name() string { return "fixed" }

func TestRecalculateWalksDownstream(t *testing.T) {
	provider := &fixedProvider{minutes: 6}
	depart := time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)
	from := geo.Point{Lat: -33.45, Lng: -70.66}

	downstream := []Candidate{
		{StopID: "s2", SequenceOrder: 2, ServiceMinutes: 10, Point: &geo.Point{Lat: -33.46, Lng: -70.65}},
		{StopID: "s3", SequenceOrder: 3, ServiceMinutes: 5, Point: &geo.Point{Lat: -33.44, Lng: -70.67}},
	}

	updates, err := Recalculate(context.Background(), provider, from, depart, downstream)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.Equal(t, 2, provider.calls)

	require.Equal(t, "s2", updates[0].StopID)
	require.Equal(t, depart.Add(6*time.Minute), updates[0].EstimatedArrival)
	require.Equal(t, 2, updates[0].SequenceOrder)

	// s3 = s2 arrival + 10 service + 6 travel
	require.Equal(t, "s3", updates[1].StopID)
	require.Equal(t, depart.Add(22*time.Minute), updates[1].EstimatedArrival)
}

func TestRecalculateSkipsUngeocodedStops(t *testing.T) {
	provider := &fixedProvider{minutes: 6}
	depart := time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)
	from := geo.Point{Lat: -33.45, Lng: -70.66}

	downstream := []Candidate{
		{StopID: "s2", SequenceOrder: 2, ServiceMinutes: 10}, // no coordinates
		{StopID: "s3", SequenceOrder: 3, ServiceMinutes: 5, Point: &geo.Point{Lat: -33.44, Lng: -70.67}},
	}

	updates, err := Recalculate(context.Background(), provider, from, depart, downstream)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, "s3", updates[0].StopID)
	// the ungeocoded stop neither consumed a provider call nor advanced the clock
	require.Equal(t, 1, provider.calls)
	require.Equal(t, depart.Add(6*time.Minute), updates[0].EstimatedArrival)
}

func TestRecalculateProviderFailure(t *testing.T) {
	provider := &fixedProvider{err: errors.New("matrix service down")}
	_, err := Recalculate(context.Background(), provider, geo.Point{}, time.Now(),
		[]Candidate{{StopID: "s2", Point: &geo.Point{Lat: 1, Lng: 1}}})
	require.Error(t, err)
}

func TestDepotReturn(t *testing.T) {
	provider := &fixedProvider{minutes: 9}
	depart := time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)

	ret, err := DepotReturn(context.Background(), provider, geo.Point{Lat: -33.44, Lng: -70.67}, depart, geo.Point{Lat: -33.45, Lng: -70.66})
	require.NoError(t, err)
	require.Equal(t, depart.Add(9*time.Minute), ret)
}
