package optimizer

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/domain/geo"
	"dispatch/internal/travel"

	"github.com/stretchr/testify/require"
)

var santiagoDepot = geo.Point{Lat: -33.45, Lng: -70.66}

func threeStops() []Stop {
	return []Stop{
		{ID: "A", Point: geo.Point{Lat: -33.46, Lng: -70.65}, ServiceMinutes: 10},
		{ID: "B", Point: geo.Point{Lat: -33.44, Lng: -70.67}, ServiceMinutes: 10},
		{ID: "C", Point: geo.Point{Lat: -33.45, Lng: -70.68}, ServiceMinutes: 10},
	}
}

func shiftStart(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
}

func TestPlanThreeStopsNoWindows(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 42)

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      santiagoDepot,
		Stops:      threeStops(),
		ShiftStart: shiftStart(t),
	})
	require.NoError(t, err)
	require.Equal(t, "anneal", plan.Strategy)
	require.Len(t, plan.Legs, 3)
	require.Empty(t, plan.Unserviceable)
	require.ElementsMatch(t, []string{"A", "B", "C"}, plan.OrderedIDs())

	// arrivals advance monotonically with service time in between
	for i, leg := range plan.Legs {
		require.True(t, leg.Departure.After(leg.Arrival), "leg %d departure must follow arrival", i)
		require.InDelta(t, 10, leg.Departure.Sub(leg.Arrival).Minutes(), 0.01)
		if i > 0 {
			require.True(t, leg.Arrival.After(plan.Legs[i-1].Departure))
		}
	}

	require.True(t, plan.DepotReturn.After(plan.Legs[2].Departure))
	require.Greater(t, plan.TotalDistanceKM, 0.0)
	require.InDelta(t, plan.DepotReturn.Sub(shiftStart(t)).Minutes(), plan.TotalDurationMin, 0.01)
}

func TestPlanDeterministicForSameSeed(t *testing.T) {
	req := Request{Depot: santiagoDepot, Stops: threeStops(), ShiftStart: shiftStart(t)}

	first, err := NewSeeded(travel.NewCheapProvider(), 7).Plan(context.Background(), req)
	require.NoError(t, err)
	second, err := NewSeeded(travel.NewCheapProvider(), 7).Plan(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.OrderedIDs(), second.OrderedIDs())
	require.InDelta(t, first.TotalDistanceKM, second.TotalDistanceKM, 1e-9)
}

func TestPlanEmptyStops(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 1)

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      santiagoDepot,
		ShiftStart: shiftStart(t),
	})
	require.NoError(t, err)
	require.Empty(t, plan.Legs)
	require.Equal(t, "none", plan.Strategy)
	require.Equal(t, shiftStart(t), plan.DepotReturn)
}

func TestPlanInvalidInputs(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 1)

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "bad depot latitude",
			req:  Request{Depot: geo.Point{Lat: 91}, Stops: threeStops(), ShiftStart: shiftStart(t)},
		},
		{
			name: "bad stop longitude",
			req: Request{
				Depot:      santiagoDepot,
				Stops:      []Stop{{ID: "X", Point: geo.Point{Lng: 200}}},
				ShiftStart: shiftStart(t),
			},
		},
		{
			name: "missing shift start",
			req:  Request{Depot: santiagoDepot, Stops: threeStops()},
		},
		{
			name: "unknown pinned first stop",
			req:  Request{Depot: santiagoDepot, Stops: threeStops(), ShiftStart: shiftStart(t), FirstStopID: "nope"},
		},
		{
			name: "same stop pinned both ends",
			req:  Request{Depot: santiagoDepot, Stops: threeStops(), ShiftStart: shiftStart(t), FirstStopID: "A", LastStopID: "A"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pl.Plan(context.Background(), tc.req)
			require.Error(t, err)
			var oe *Error
			require.ErrorAs(t, err, &oe)
			require.Equal(t, KindInvalidInput, oe.Kind)
		})
	}
}

func TestPlanHonorsPins(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 42)

	plan, err := pl.Plan(context.Background(), Request{
		Depot:       santiagoDepot,
		Stops:       threeStops(),
		ShiftStart:  shiftStart(t),
		FirstStopID: "C",
		LastStopID:  "A",
	})
	require.NoError(t, err)

	order := plan.OrderedIDs()
	require.Len(t, order, 3)
	require.Equal(t, "C", order[0])
	require.Equal(t, "A", order[2])
}

func TestPlanWindowedPrefersUrgentStop(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 42)
	start := shiftStart(t)

	stops := threeStops()
	// C closes 30 minutes in; the others are open all day
	end := start.Add(30 * time.Minute)
	stops[2].WindowEnd = &end

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      santiagoDepot,
		Stops:      stops,
		ShiftStart: start,
	})
	require.NoError(t, err)
	require.Equal(t, "vrptw", plan.Strategy)
	require.Equal(t, "C", plan.OrderedIDs()[0])
	require.Zero(t, plan.Legs[0].LateByMinutes)
}

func TestPlanWindowedHighPriorityFirst(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 42)

	stops := threeStops()
	stops[1].Priority = 5 // B jumps the queue

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      santiagoDepot,
		Stops:      stops,
		ShiftStart: shiftStart(t),
	})
	require.NoError(t, err)
	require.Equal(t, "vrptw", plan.Strategy)
	require.Equal(t, "B", plan.OrderedIDs()[0])
}

func TestPlanWindowedShiftEndCutsUnreachable(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 42)
	start := shiftStart(t)

	stops := threeStops()
	stops[0].Priority = 1 // force the windowed strategy

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      santiagoDepot,
		Stops:      stops,
		ShiftStart: start,
		ShiftEnd:   start.Add(12 * time.Minute), // roughly one stop's worth
	})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Unserviceable)
	require.NotEmpty(t, plan.Warnings)
	require.Less(t, len(plan.Legs), 3)
}

func TestPlanLateArrivalReported(t *testing.T) {
	pl := NewSeeded(travel.NewCheapProvider(), 42)
	start := shiftStart(t)

	stops := threeStops()
	for i := range stops {
		end := start.Add(1 * time.Minute) // every window is already closing
		stops[i].WindowEnd = &end
	}

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      santiagoDepot,
		Stops:      stops,
		ShiftStart: start,
	})
	require.NoError(t, err)
	require.Len(t, plan.Legs, 3)

	var late bool
	for _, leg := range plan.Legs {
		if leg.LateByMinutes > 0 {
			late = true
		}
	}
	require.True(t, late)
	require.NotEmpty(t, plan.Warnings)
}

func TestFingerprintStability(t *testing.T) {
	stops := threeStops()

	require.Equal(t, Fingerprint(stops), Fingerprint(threeStops()))

	// order matters
	swapped := threeStops()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.NotEqual(t, Fingerprint(stops), Fingerprint(swapped))

	// coordinates matter
	moved := threeStops()
	moved[0].Point.Lat += 0.001
	require.NotEqual(t, Fingerprint(stops), Fingerprint(moved))

	// windows matter
	windowed := threeStops()
	end := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	windowed[0].WindowEnd = &end
	require.NotEqual(t, Fingerprint(stops), Fingerprint(windowed))

	// service minutes and priority do not feed the fingerprint
	tweaked := threeStops()
	tweaked[0].ServiceMinutes = 99
	tweaked[1].Priority = 9
	require.Equal(t, Fingerprint(stops), Fingerprint(tweaked))
}

func TestTwoOptImprovesCrossedTour(t *testing.T) {
	// four corners of a square; the worst tour crosses the diagonals
	stops := []Stop{
		{ID: "nw", Point: geo.Point{Lat: -33.40, Lng: -70.70}},
		{ID: "se", Point: geo.Point{Lat: -33.50, Lng: -70.60}},
		{ID: "ne", Point: geo.Point{Lat: -33.40, Lng: -70.60}},
		{ID: "sw", Point: geo.Point{Lat: -33.50, Lng: -70.70}},
	}
	pl := NewSeeded(travel.NewCheapProvider(), 3)

	plan, err := pl.Plan(context.Background(), Request{
		Depot:      geo.Point{Lat: -33.45, Lng: -70.65},
		Stops:      stops,
		ShiftStart: shiftStart(t),
	})
	require.NoError(t, err)
	require.Len(t, plan.Legs, 4)

	// the perimeter tour comes in around 60 km with the road factor applied;
	// any tour crossing a diagonal exceeds 70 km
	require.Less(t, plan.TotalDistanceKM, 65.0, "tour %v looks crossed", plan.OrderedIDs())
}
