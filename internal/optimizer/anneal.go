package optimizer

import "math"

// Annealing schedule for the unwindowed search.
const (
	initialTemp    = 10000.0
	coolingRate    = 0.995
	minTemp        = 0.1
	itersPerTempN  = 50 // multiplied by stop count
	twoOptMaxLoops = 1000
)

// planAnnealed runs nearest-neighbor construction, simulated annealing, and a
// deterministic 2-opt polish over the distance matrix.
func (pl *Planner) planAnnealed(req Request, minutes, meters [][]float64, firstIdx, lastIdx int) (*Plan, error) {
	n := len(req.Stops)

	tour := nearestNeighborTour(n, meters, firstIdx, lastIdx)
	if n > 2 {
		tour = pl.anneal(tour, meters, firstIdx, lastIdx)
		tour = twoOpt(tour, meters, firstIdx, lastIdx)
	}

	plan := req.buildLegs(tour, minutes, meters)
	plan.Strategy = "anneal"
	return plan, nil
}

// tourDistance is the closed-tour cost: depot, each stop in order, depot.
// Positions are stop slice indexes; the matrix uses index 0 for the depot.
func tourDistance(tour []int, meters [][]float64) float64 {
	total := 0.0
	prev := 0
	for _, si := range tour {
		total += meters[prev][si+1]
		prev = si + 1
	}
	total += meters[prev][0]
	return total
}

// nearestNeighborTour greedily builds the initial order from the depot,
// honoring pinned endpoints.
func nearestNeighborTour(n int, meters [][]float64, firstIdx, lastIdx int) []int {
	visited := make([]bool, n)
	tour := make([]int, 0, n)
	prev := 0

	if firstIdx >= 0 {
		tour = append(tour, firstIdx)
		visited[firstIdx] = true
		prev = firstIdx + 1
	}

	for len(tour) < n {
		best := -1
		for si := 0; si < n; si++ {
			if visited[si] {
				continue
			}
			if si == lastIdx && len(tour) < n-1 {
				continue
			}
			if best < 0 || meters[prev][si+1] < meters[prev][best+1] {
				best = si
			}
		}
		tour = append(tour, best)
		visited[best] = true
		prev = best + 1
	}
	return tour
}

// anneal perturbs the tour with random swaps and segment reversals, accepting
// worse tours with probability exp(-delta/T) while the temperature decays.
// Pinned endpoints stay fixed.
func (pl *Planner) anneal(tour []int, meters [][]float64, firstIdx, lastIdx int) []int {
	n := len(tour)
	lo, hi := mutableRange(n, firstIdx, lastIdx)
	if hi-lo < 1 {
		return tour
	}

	current := append([]int(nil), tour...)
	best := append([]int(nil), tour...)
	currentCost := tourDistance(current, meters)
	bestCost := currentCost
	scratch := make([]int, n)

	for temp := initialTemp; temp > minTemp; temp *= coolingRate {
		for iter := 0; iter < itersPerTempN*n; iter++ {
			copy(scratch, current)

			i := lo + pl.rng.Intn(hi-lo+1)
			j := lo + pl.rng.Intn(hi-lo+1)
			if i == j {
				continue
			}
			if i > j {
				i, j = j, i
			}

			if pl.rng.Intn(2) == 0 {
				scratch[i], scratch[j] = scratch[j], scratch[i]
			} else {
				reverse(scratch, i, j)
			}

			cost := tourDistance(scratch, meters)
			delta := cost - currentCost
			if delta <= 0 || pl.rng.Float64() < math.Exp(-delta/temp) {
				copy(current, scratch)
				currentCost = cost
				if currentCost < bestCost {
					copy(best, current)
					bestCost = currentCost
				}
			}
		}
	}
	return best
}

// twoOpt applies first-improving segment reversals until no move helps,
// bounded to keep the worst case predictable.
func twoOpt(tour []int, meters [][]float64, firstIdx, lastIdx int) []int {
	n := len(tour)
	lo, hi := mutableRange(n, firstIdx, lastIdx)
	if hi-lo < 1 {
		return tour
	}

	out := append([]int(nil), tour...)
	cost := tourDistance(out, meters)
	scratch := make([]int, n)

	for loop := 0; loop < twoOptMaxLoops; loop++ {
		improved := false
		for i := lo; i < hi && !improved; i++ {
			for j := i + 1; j <= hi; j++ {
				copy(scratch, out)
				reverse(scratch, i, j)
				if c := tourDistance(scratch, meters); c < cost {
					copy(out, scratch)
					cost = c
					improved = true
					break
				}
			}
		}
		if !improved {
			break
		}
	}
	return out
}

// mutableRange returns the inclusive index range the search may rearrange.
func mutableRange(n, firstIdx, lastIdx int) (lo, hi int) {
	lo, hi = 0, n-1
	if firstIdx >= 0 {
		lo = 1
	}
	if lastIdx >= 0 {
		hi = n - 2
	}
	return lo, hi
}

func reverse(s []int, i, j int) {
	for i < j {
		s[i], s[j] = s[j], s[i]
		i++
		j--
	}
}
