package optimizer

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Scoring weights for the window-aware greedy search. Travel is the base
// cost; waiting is half as bad as driving; lateness dominates; priority and
// urgency act as discounts that pull stops forward in the tour.
const (
	waitWeight        = 0.5
	lateWeight        = 10.0
	priorityDiscount  = 20.0
	urgencyDiscount   = 20.0
	urgencyHorizonMin = 60.0
	earlyPriorityDisc = 15.0
	earlyPickCount    = 3
)

// planWindowed runs the greedy window-aware construction: repeatedly score
// every unvisited stop from the current position and take the cheapest.
func (pl *Planner) planWindowed(req Request, minutes, meters [][]float64, firstIdx, lastIdx int) (*Plan, error) {
	n := len(req.Stops)
	unvisited := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		unvisited[i] = true
	}

	var (
		order       []int
		warnings    []string
		currentTime = req.ShiftStart
		prev        = 0 // depot matrix index
	)

	for len(unvisited) > 0 {
		candidates := pl.candidateSet(unvisited, order, firstIdx, lastIdx)

		best := -1
		bestScore := math.Inf(1)
		var bestEnd time.Time
		for _, si := range candidates {
			s := req.Stops[si]
			arrival := currentTime.Add(minutesDur(minutes[prev][si+1]))

			var wait float64
			if s.WindowStart != nil && arrival.Before(*s.WindowStart) {
				wait = s.WindowStart.Sub(arrival).Minutes()
			}
			effective := arrival.Add(minutesDur(wait))
			if !req.ShiftEnd.IsZero() && effective.After(req.ShiftEnd) {
				continue // not reachable within the shift
			}

			var late float64
			if s.WindowEnd != nil && effective.After(*s.WindowEnd) {
				late = effective.Sub(*s.WindowEnd).Minutes()
			}

			score := minutes[prev][si+1] + waitWeight*wait + lateWeight*late - priorityDiscount*float64(s.Priority)
			if s.WindowEnd != nil && s.WindowEnd.Sub(currentTime).Minutes() < urgencyHorizonMin {
				score -= urgencyDiscount
			}
			if len(order) < earlyPickCount {
				score -= earlyPriorityDisc * float64(s.Priority)
			}

			if better(score, bestScore, s.WindowEnd, bestEnd, s.ID, bestID(req, best)) {
				best, bestScore = si, score
				bestEnd = windowEndOrZero(s.WindowEnd)
			}
		}

		if best < 0 {
			remaining := remainingIDs(req, unvisited)
			warnings = append(warnings, fmt.Sprintf("%d stop(s) cannot be reached within the driver shift", len(remaining)))
			plan := req.buildLegs(order, minutes, meters)
			plan.Unserviceable = remaining
			plan.Warnings = warnings
			plan.Strategy = "vrptw"
			return plan, nil
		}

		s := req.Stops[best]
		arrival := currentTime.Add(minutesDur(minutes[prev][best+1]))
		var wait float64
		if s.WindowStart != nil && arrival.Before(*s.WindowStart) {
			wait = s.WindowStart.Sub(arrival).Minutes()
		}
		effective := arrival.Add(minutesDur(wait))
		if s.WindowEnd != nil && effective.After(*s.WindowEnd) {
			warnings = append(warnings, fmt.Sprintf("stop %s is expected %.0f min past its window", s.ID, effective.Sub(*s.WindowEnd).Minutes()))
		}

		order = append(order, best)
		delete(unvisited, best)
		currentTime = effective.Add(time.Duration(s.ServiceMinutes) * time.Minute)
		prev = best + 1
	}

	plan := req.buildLegs(order, minutes, meters)
	plan.Warnings = warnings
	plan.Strategy = "vrptw"
	return plan, nil
}

// candidateSet applies the pin constraints: a pinned first stop is the only
// candidate for position one; a pinned last stop is withheld until the end.
func (pl *Planner) candidateSet(unvisited map[int]bool, order []int, firstIdx, lastIdx int) []int {
	if firstIdx >= 0 && len(order) == 0 && unvisited[firstIdx] {
		return []int{firstIdx}
	}

	out := make([]int, 0, len(unvisited))
	for si := range unvisited {
		if si == lastIdx && len(unvisited) > 1 {
			continue
		}
		out = append(out, si)
	}
	sort.Ints(out) // deterministic iteration
	return out
}

// better implements the ordering: lower score wins; ties go to the earlier
// window end, then the lower id.
func better(score, bestScore float64, end *time.Time, bestEnd time.Time, id, bestStopID string) bool {
	if score != bestScore {
		return score < bestScore
	}
	e := windowEndOrZero(end)
	if !e.Equal(bestEnd) {
		if bestEnd.IsZero() {
			return !e.IsZero()
		}
		return !e.IsZero() && e.Before(bestEnd)
	}
	return id < bestStopID
}

func windowEndOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func bestID(req Request, idx int) string {
	if idx < 0 {
		return ""
	}
	return req.Stops[idx].ID
}

func remainingIDs(req Request, unvisited map[int]bool) []string {
	out := make([]string, 0, len(unvisited))
	for si := range unvisited {
		out = append(out, req.Stops[si].ID)
	}
	sort.Strings(out)
	return out
}
