package optimizer

import (
	"context"
	"math/rand"
	"time"

	"dispatch/internal/domain/geo"
	"dispatch/internal/travel"
)

// Planner turns a Request into a Plan using a travel time provider.
// It is pure computation on top of the provider; it never touches storage.
type Planner struct {
	provider travel.Provider
	rng      *rand.Rand
}

// New constructs a Planner with a time-seeded random source.
func New(provider travel.Provider) *Planner {
	return NewSeeded(provider, time.Now().UnixNano())
}

// NewSeeded constructs a Planner with a fixed seed, for reproducible runs.
func NewSeeded(provider travel.Provider, seed int64) *Planner {
	return &Planner{provider: provider, rng: rand.New(rand.NewSource(seed))}
}

// Plan selects a strategy and computes the visiting order.
// Time-window or priority inputs route to the greedy window-aware search;
// plain deliveries get nearest-neighbor plus annealing plus a 2-opt polish.
func (pl *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	if err := req.Depot.Validate(); err != nil {
		return nil, invalidInput("depot coordinates: " + err.Error())
	}
	for _, s := range req.Stops {
		if err := s.Point.Validate(); err != nil {
			return nil, invalidInput("stop " + s.ID + " coordinates: " + err.Error())
		}
	}
	if req.ShiftStart.IsZero() {
		return nil, invalidInput("shift start is required")
	}

	firstIdx, lastIdx, err := req.pinnedIndexes()
	if err != nil {
		return nil, err
	}

	if len(req.Stops) == 0 {
		return &Plan{DepotReturn: req.ShiftStart, Strategy: "none"}, nil
	}

	// one matrix call over {depot} ∪ stops covers every strategy
	points := req.matrixPoints()
	minutes, meters, err := pl.provider.Matrix(ctx, points)
	if err != nil {
		return nil, &Error{Kind: KindTravelTimeUnavailable, Msg: "matrix call failed", Err: err}
	}

	if req.windowed() {
		return pl.planWindowed(req, minutes, meters, firstIdx, lastIdx)
	}
	return pl.planAnnealed(req, minutes, meters, firstIdx, lastIdx)
}

// windowed reports whether any stop carries a time window or a priority.
func (req *Request) windowed() bool {
	for _, s := range req.Stops {
		if s.WindowStart != nil || s.WindowEnd != nil || s.Priority > 0 {
			return true
		}
	}
	return false
}

// matrixPoints lays out the matrix as index 0 = depot, index i+1 = stop i.
func (req *Request) matrixPoints() []geo.Point {
	pts := make([]geo.Point, 0, len(req.Stops)+1)
	pts = append(pts, req.Depot)
	for _, s := range req.Stops {
		pts = append(pts, s.Point)
	}
	return pts
}

// pinnedIndexes resolves the pinned stop ids to stop slice indexes, or -1.
func (req *Request) pinnedIndexes() (first, last int, err error) {
	first, last = -1, -1
	find := func(id string) int {
		for i, s := range req.Stops {
			if s.ID == id {
				return i
			}
		}
		return -1
	}

	if req.FirstStopID != "" {
		if first = find(req.FirstStopID); first < 0 {
			return 0, 0, invalidInput("pinned first stop " + req.FirstStopID + " is not on the route")
		}
	}
	if req.LastStopID != "" {
		if last = find(req.LastStopID); last < 0 {
			return 0, 0, invalidInput("pinned last stop " + req.LastStopID + " is not on the route")
		}
	}
	if first >= 0 && first == last && len(req.Stops) > 1 {
		return 0, 0, invalidInput("same stop pinned as both first and last")
	}
	return first, last, nil
}

// buildLegs walks the chosen order and computes per-leg timing.
// order holds stop slice indexes; windows (when present) produce wait and
// lateness against the running clock.
func (req *Request) buildLegs(order []int, minutes, meters [][]float64) *Plan {
	plan := &Plan{Legs: make([]Leg, 0, len(order))}

	currentTime := req.ShiftStart
	prev := 0 // depot matrix index
	for _, si := range order {
		s := req.Stops[si]
		mi := si + 1

		tmin := minutes[prev][mi]
		arrival := currentTime.Add(minutesDur(tmin))

		var wait, late float64
		if s.WindowStart != nil && arrival.Before(*s.WindowStart) {
			wait = s.WindowStart.Sub(arrival).Minutes()
		}
		effective := arrival.Add(minutesDur(wait))
		if s.WindowEnd != nil && effective.After(*s.WindowEnd) {
			late = effective.Sub(*s.WindowEnd).Minutes()
		}

		departure := effective.Add(time.Duration(s.ServiceMinutes) * time.Minute)
		plan.Legs = append(plan.Legs, Leg{
			StopID:        s.ID,
			TravelMinutes: tmin,
			Arrival:       arrival,
			Departure:     departure,
			WaitMinutes:   wait,
			LateByMinutes: late,
		})

		plan.TotalDistanceKM += meters[prev][mi] / 1000
		currentTime = departure
		prev = mi
	}

	// close the tour back to the depot
	if len(order) > 0 {
		last := order[len(order)-1] + 1
		plan.TotalDistanceKM += meters[last][0] / 1000
		plan.DepotReturn = currentTime.Add(minutesDur(minutes[last][0]))
	} else {
		plan.DepotReturn = req.ShiftStart
	}
	plan.TotalDurationMin = plan.DepotReturn.Sub(req.ShiftStart).Minutes()

	return plan
}

func minutesDur(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
