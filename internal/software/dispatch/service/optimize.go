package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/stop"
	"dispatch/internal/general/metrics"
	"dispatch/internal/optimizer"
	"dispatch/internal/ports"
	"dispatch/internal/travel"
)

// Optimize plans the route's visiting order. Re-running with unchanged inputs
// short-circuits on the stored fingerprint; a force flag or a first/last pin
// always replans.
func (svc *dispatchService) Optimize(ctx context.Context, in ports.OptimizeInput) (ports.OptimizeResult, error) {
	ctx = svc.logger.WithRouteID(ctx, in.RouteID)

	var out ports.OptimizeResult
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.routes.GetByIDForUpdate(ctx, in.RouteID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: route %s", ports.ErrNotFound, in.RouteID)
		}
		if r.Status != route.StatusDraft && r.Status != route.StatusScheduled {
			return fmt.Errorf("%w: route can only be optimized before it starts", ports.ErrConflict)
		}

		stops, err := svc.stops.ListByRoute(ctx, in.RouteID)
		if err != nil {
			return err
		}
		addrs, err := svc.addressesFor(ctx, stops)
		if err != nil {
			return err
		}

		candidates, skippedUngeocoded := planningStops(stops, addrs)
		if len(stops) > 0 && len(candidates) < 2 {
			return fmt.Errorf("%w: route needs at least two geocoded stops", ports.ErrValidation)
		}

		pinned := in.FirstStopID != "" || in.LastStopID != ""
		hash := optimizer.Fingerprint(candidates)
		if !in.Force && !pinned && r.OptimizedAt != nil && r.OptimizationHash != nil && *r.OptimizationHash == hash {
			out = svc.shortCircuitResult(r, stops, hash)
			metrics.OptimizerRuns.WithLabelValues("fingerprint", "short_circuit").Inc()
			svc.logger.Info(ctx, "optimize_short_circuit", "Inputs unchanged; keeping current order", map[string]any{
				"hash": hash,
			})
			return nil
		}

		depotPoint, err := svc.originPoint(ctx, r)
		if err != nil {
			return err
		}

		shiftStart := time.Now().UTC()
		if in.DriverStartTime != nil {
			shiftStart = in.DriverStartTime.UTC()
		}
		req := optimizer.Request{
			Depot:       *depotPoint,
			Stops:       candidates,
			ShiftStart:  shiftStart,
			FirstStopID: in.FirstStopID,
			LastStopID:  in.LastStopID,
		}
		if in.DriverEndTime != nil {
			req.ShiftEnd = in.DriverEndTime.UTC()
		}

		provider := svc.pickProvider(len(candidates), in.UseHaversine)
		plan, err := optimizer.New(provider).Plan(ctx, req)
		if err != nil {
			var oe *optimizer.Error
			if errors.As(err, &oe) {
				switch oe.Kind {
				case optimizer.KindInvalidInput:
					return fmt.Errorf("%w: %v", ports.ErrValidation, err)
				default:
					return fmt.Errorf("%w: %v", ports.ErrProviderUnavailable, err)
				}
			}
			return err
		}
		metrics.OptimizerRuns.WithLabelValues(plan.Strategy, "ok").Inc()

		if err := svc.applyPlan(ctx, r, stops, plan); err != nil {
			return err
		}

		// the stored hash always describes the resulting order, so a pinned
		// run re-fingerprints after resequencing
		finalHash := hash
		if pinned {
			finalHash = optimizer.Fingerprint(reorderCandidates(candidates, plan))
		}
		r.MarkOptimized(finalHash, plan.TotalDistanceKM, plan.TotalDurationMin)
		ret := plan.DepotReturn
		r.DepotReturnTime = &ret
		if err := svc.routes.Save(ctx, r); err != nil {
			return err
		}

		out = planResult(r.ID, plan, finalHash, skippedUngeocoded)
		return nil
	})
	if err != nil {
		return ports.OptimizeResult{}, err
	}

	svc.logger.Info(ctx, "route_optimized", "Route optimized", map[string]any{
		"stops":           len(out.Stops),
		"distance_km":     out.TotalDistanceKM,
		"duration_min":    out.TotalDurationMin,
		"short_circuited": out.ShortCircuited,
	})
	return out, nil
}

// pickProvider applies the size policy unless the caller forces a side.
func (svc *dispatchService) pickProvider(stopCount int, useHaversine *bool) travel.Provider {
	if useHaversine != nil {
		if *useHaversine {
			return svc.cheap
		}
		if svc.real != nil {
			return svc.real
		}
		return svc.cheap
	}
	if stopCount > cheapProviderCutoff || svc.real == nil {
		return svc.cheap
	}
	return svc.real
}

// originPoint resolves where the tour starts: explicit route origin, the
// route's depot, or the default depot.
func (svc *dispatchService) originPoint(ctx context.Context, r *route.Route) (*geo.Point, error) {
	if p := r.Origin(); p != nil {
		return p, nil
	}
	if r.DepotID != nil {
		d, err := svc.depots.GetByID(ctx, *r.DepotID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return &d.Point, nil
		}
	}
	d, err := svc.depots.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: route has no origin and no default depot exists", ports.ErrValidation)
	}
	return &d.Point, nil
}

// addressesFor bulk-loads the stops' addresses.
func (svc *dispatchService) addressesFor(ctx context.Context, stops []*stop.Stop) (map[string]*address.Address, error) {
	ids := make([]string, 0, len(stops))
	for _, s := range stops {
		ids = append(ids, s.AddressID)
	}
	return svc.addresses.GetByIDs(ctx, ids)
}

// planningStops converts geocoded stops into planner candidates, keeping the
// current sequence order. Ungeocoded stops are reported as warnings.
func planningStops(stops []*stop.Stop, addrs map[string]*address.Address) ([]optimizer.Stop, []string) {
	var (
		out     []optimizer.Stop
		skipped []string
	)
	for _, s := range stops {
		addr := addrs[s.AddressID]
		if addr == nil || !addr.Geocoded() {
			skipped = append(skipped, s.ID)
			continue
		}
		out = append(out, optimizer.Stop{
			ID:             s.ID,
			Point:          *addr.Point,
			ServiceMinutes: s.EstimatedMinutes,
			Priority:       s.Priority,
			WindowStart:    s.TimeWindowStart,
			WindowEnd:      s.TimeWindowEnd,
		})
	}
	return out, skipped
}

// applyPlan resequences the stops and persists the planned schedule.
// Unplanned stops (unserviceable or ungeocoded) keep their relative order at
// the tail of the route.
func (svc *dispatchService) applyPlan(ctx context.Context, r *route.Route, stops []*stop.Stop, plan *optimizer.Plan) error {
	planned := make(map[string]int, len(plan.Legs)) // stop id -> leg index
	order := make([]string, 0, len(stops))
	for i, leg := range plan.Legs {
		planned[leg.StopID] = i
		order = append(order, leg.StopID)
	}
	for _, s := range stops {
		if _, ok := planned[s.ID]; !ok {
			order = append(order, s.ID)
		}
	}

	if err := svc.stops.Resequence(ctx, r.ID, order); err != nil {
		return err
	}

	updates := make([]ports.ETAUpdate, 0, len(plan.Legs))
	for i, leg := range plan.Legs {
		updates = append(updates, ports.ETAUpdate{
			StopID:            leg.StopID,
			EstimatedArrival:  leg.Arrival,
			TravelMinutesFrom: leg.TravelMinutes,
			SequenceOrder:     i + 1,
		})
	}
	return svc.stops.BatchUpdateETAs(ctx, updates)
}

// shortCircuitResult renders the stored order without replanning.
func (svc *dispatchService) shortCircuitResult(r *route.Route, stops []*stop.Stop, hash string) ports.OptimizeResult {
	out := ports.OptimizeResult{
		RouteID:        r.ID,
		Hash:           hash,
		ShortCircuited: true,
	}
	if r.TotalDistanceKM != nil {
		out.TotalDistanceKM = *r.TotalDistanceKM
	}
	if r.TotalDurationMin != nil {
		out.TotalDurationMin = *r.TotalDurationMin
	}
	out.DepotReturnTime = r.DepotReturnTime
	for _, s := range stops {
		v := ports.OptimizedStopView{
			StopID:        s.ID,
			SequenceOrder: s.SequenceOrder,
			TimeWindowEnd: s.TimeWindowEnd,
		}
		if s.EstimatedArrival != nil {
			v.EstimatedArrival = *s.EstimatedArrival
		}
		if s.TravelMinutesFromPrevious != nil {
			v.TravelMinutes = *s.TravelMinutesFromPrevious
		}
		out.Stops = append(out.Stops, v)
	}
	return out
}

// planResult renders a fresh plan.
func planResult(routeID string, plan *optimizer.Plan, hash string, skippedUngeocoded []string) ports.OptimizeResult {
	out := ports.OptimizeResult{
		RouteID:          routeID,
		Unserviceable:    append(append([]string(nil), plan.Unserviceable...), skippedUngeocoded...),
		TotalDistanceKM:  plan.TotalDistanceKM,
		TotalDurationMin: plan.TotalDurationMin,
		Warnings:         plan.Warnings,
		Hash:             hash,
	}
	ret := plan.DepotReturn
	out.DepotReturnTime = &ret
	for i, leg := range plan.Legs {
		out.Stops = append(out.Stops, ports.OptimizedStopView{
			StopID:           leg.StopID,
			SequenceOrder:    i + 1,
			EstimatedArrival: leg.Arrival,
			Departure:        leg.Departure,
			TravelMinutes:    leg.TravelMinutes,
			WaitMinutes:      leg.WaitMinutes,
			LateByMinutes:    leg.LateByMinutes,
		})
	}
	for _, id := range skippedUngeocoded {
		out.Warnings = append(out.Warnings, "stop "+id+" has no coordinates and was left at the end of the route")
	}
	return out
}

// reorderCandidates returns the candidates permuted into the plan's order.
func reorderCandidates(candidates []optimizer.Stop, plan *optimizer.Plan) []optimizer.Stop {
	byID := make(map[string]optimizer.Stop, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	out := make([]optimizer.Stop, 0, len(candidates))
	for _, leg := range plan.Legs {
		out = append(out, byID[leg.StopID])
		delete(byID, leg.StopID)
	}
	for _, c := range candidates {
		if _, left := byID[c.ID]; left {
			out = append(out, c)
		}
	}
	return out
}
