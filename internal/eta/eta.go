// Package eta holds the arrival-time math of the route engine: the start-of-route
// freeze, the deviation gate, and downstream recalculation after a completion.
package eta

import (
	"context"
	"time"

	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/stop"
	"dispatch/internal/ports"
	"dispatch/internal/travel"
)

// DeviationGate is the threshold below which a completion counts as on time
// and downstream ETAs are left untouched.
const DeviationGate = 15 * time.Minute

// OnTime reports whether completedAt is within the gate of the frozen ETA.
// A stop that never got a frozen ETA is treated as on time: there is no
// reference to deviate from.
func OnTime(completedAt time.Time, original *time.Time) bool {
	if original == nil {
		return true
	}
	delta := completedAt.Sub(*original)
	if delta < 0 {
		delta = -delta
	}
	return delta <= DeviationGate
}

// Freeze walks the stops in sequence order and pins each one's original ETA,
// exactly once, anchored at startedAt. Travel minutes come from the stored
// optimization output; service minutes advance the clock between stops.
func Freeze(stops []*stop.Stop, startedAt time.Time) error {
	current := startedAt.UTC()
	for _, s := range stops {
		if !s.Open() {
			continue
		}
		var travelMin float64
		if s.TravelMinutesFromPrevious != nil {
			travelMin = *s.TravelMinutesFromPrevious
		}
		arrival := current.Add(time.Duration(travelMin * float64(time.Minute)))
		if s.OriginalEstimatedArrival == nil {
			if err := s.FreezeOriginalETA(arrival); err != nil {
				return err
			}
		}
		current = arrival.Add(time.Duration(s.EstimatedMinutes) * time.Minute)
	}
	return nil
}

// Candidate is one downstream stop eligible for recalculation.
type Candidate struct {
	StopID         string
	SequenceOrder  int
	ServiceMinutes int
	Point          *geo.Point // nil when the address never geocoded
}

// Recalculate rewalks the downstream schedule from the just-completed stop's
// position and departure instant. Stops without coordinates are passed over
// without advancing the position. One provider call per stop.
func Recalculate(ctx context.Context, provider travel.Provider, from geo.Point, departAt time.Time, downstream []Candidate) ([]ports.ETAUpdate, error) {
	var updates []ports.ETAUpdate
	current := departAt.UTC()
	prev := from

	for _, c := range downstream {
		if c.Point == nil {
			continue
		}
		travelMin, err := provider.TravelTime(ctx, prev, *c.Point, current)
		if err != nil {
			return nil, err
		}
		arrival := current.Add(time.Duration(travelMin * float64(time.Minute)))
		updates = append(updates, ports.ETAUpdate{
			StopID:            c.StopID,
			EstimatedArrival:  arrival,
			TravelMinutesFrom: travelMin,
			SequenceOrder:     c.SequenceOrder,
		})
		current = arrival.Add(time.Duration(c.ServiceMinutes) * time.Minute)
		prev = *c.Point
	}
	return updates, nil
}

// DepotReturn computes when the driver is back at the depot after the last
// downstream departure.
func DepotReturn(ctx context.Context, provider travel.Provider, last geo.Point, departAt time.Time, depot geo.Point) (time.Time, error) {
	travelMin, err := provider.TravelTime(ctx, last, depot, departAt)
	if err != nil {
		return time.Time{}, err
	}
	return departAt.Add(time.Duration(travelMin * float64(time.Minute))).UTC(), nil
}
