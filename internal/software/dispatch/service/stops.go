package service

import (
	"context"
	"fmt"
	"time"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/stop"
	"dispatch/internal/eta"
	"dispatch/internal/general/contracts"
	"dispatch/internal/general/metrics"
	"dispatch/internal/ports"
	"dispatch/internal/webhook"
)

// UpdateDriverLocation ingests one GPS sample: overwrite the route's live
// telemetry, archive the point, and broadcast to live subscribers.
func (svc *dispatchService) UpdateDriverLocation(ctx context.Context, in ports.LocationInput) error {
	p := geo.Point{Lat: in.Latitude, Lng: in.Longitude}

	var snapshot contracts.GeoPoint
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, in.RouteID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := r.UpdateDriverLocation(p, in.HeadingDegrees, in.SpeedKMH, now); err != nil {
			return svc.guardError(err)
		}
		if err := svc.routes.UpdateDriverLocation(ctx, r.ID, p, in.HeadingDegrees, in.SpeedKMH, now); err != nil {
			return err
		}

		tp, err := geo.NewTrackingPoint(in.RouteID, p, in.HeadingDegrees, in.SpeedKMH, in.AccuracyMeters)
		if err != nil {
			return fmt.Errorf("%w: %v", ports.ErrValidation, err)
		}
		if err := svc.tracking.Append(ctx, tp); err != nil {
			return err
		}

		snapshot = contracts.GeoPoint{Lat: p.Lat, Lng: p.Lng}
		return nil
	})
	if err != nil {
		return err
	}

	svc.broker.Broadcast(ctx, in.RouteID, contracts.EventDriverLocation, map[string]any{
		"routeId":   in.RouteID,
		"location":  snapshot,
		"heading":   in.HeadingDegrees,
		"speedKmh":  in.SpeedKMH,
		"timestamp": time.Now().UTC(),
	})
	return nil
}

// MarkStopInTransit flags the next stop as the driver's current target and
// refreshes its ETA from the driver's last known position when available.
func (svc *dispatchService) MarkStopInTransit(ctx context.Context, routeID, stopID string) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	var emissions []emission
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if r.Status != route.StatusInProgress {
			return fmt.Errorf("%w: route is not in progress", ports.ErrConflict)
		}

		s, err := svc.lockStop(ctx, routeID, stopID)
		if err != nil {
			return err
		}
		if err := s.MarkInTransit(); err != nil {
			return svc.guardError(err)
		}

		addr, err := svc.addresses.GetByID(ctx, s.AddressID)
		if err != nil {
			return err
		}
		if r.DriverPoint != nil && addr != nil && addr.Geocoded() {
			travelMin, err := svc.etaProvider().TravelTime(ctx, *r.DriverPoint, *addr.Point, time.Now().UTC())
			if err == nil {
				s.SetEstimatedArrival(time.Now().UTC().Add(time.Duration(travelMin * float64(time.Minute))))
				tm := travelMin
				s.TravelMinutesFromPrevious = &tm
			} else {
				svc.logger.Error(ctx, "in_transit_eta_refresh_failed", "Keeping planned ETA", err,
					map[string]any{"stop_id": stopID})
			}
		}
		if err := svc.stops.Save(ctx, s); err != nil {
			return err
		}

		stops, err := svc.stops.ListByRoute(ctx, routeID)
		if err != nil {
			return err
		}
		addrs, err := svc.addressesFor(ctx, stops)
		if err != nil {
			return err
		}
		notif := svc.notificationSettings(ctx)
		brief := routeBrief(r, len(stops))
		driver := svc.driverBrief(ctx, r)
		sb := stopBrief(s, addr, notif)
		remaining := svc.remainingBriefs(stops, addrs, notif)

		emissions = append(emissions, func(ctx context.Context) {
			svc.broker.Broadcast(ctx, routeID, contracts.EventStopInTransit, sb)
			svc.publishWebhookJob(ctx, contracts.EventStopInTransit, routeID,
				webhook.NewStopEvent(contracts.EventStopInTransit, brief, driver, sb, remaining, nil))
		})
		return nil
	})
	if err != nil {
		return err
	}

	svc.fire(ctx, emissions)
	return nil
}

// CompleteStop moves a stop to a terminal status, runs the deviation-gated
// ETA recalculation for the remaining stops, and auto-completes the route
// when this was the last open stop.
func (svc *dispatchService) CompleteStop(ctx context.Context, in ports.CompleteStopInput) (ports.CompleteStopResult, error) {
	ctx = svc.logger.WithRouteID(ctx, in.RouteID)
	if !in.Status.Terminal() {
		return ports.CompleteStopResult{}, fmt.Errorf("%w: %s is not a terminal stop status", ports.ErrValidation, in.Status)
	}

	var (
		out       ports.CompleteStopResult
		emissions []emission
	)
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, in.RouteID)
		if err != nil {
			return err
		}

		// a completion arriving before the explicit start call promotes the
		// route, freezing ETAs the same way StartRoute does
		if r.Status == route.StatusScheduled {
			em, err := svc.startLocked(ctx, r, time.Now())
			if err != nil {
				return err
			}
			emissions = append(emissions, em...)
		}
		if r.Status != route.StatusInProgress {
			return fmt.Errorf("%w: route is not in progress", ports.ErrConflict)
		}

		s, err := svc.lockStop(ctx, in.RouteID, in.StopID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.Finish(in.Status, now, stop.TerminalInput{
			Notes:         in.Notes,
			FailureReason: in.FailureReason,
			SignatureURL:  in.SignatureURL,
			PhotoURL:      in.PhotoURL,
		}); err != nil {
			return svc.guardError(err)
		}
		if err := svc.stops.Save(ctx, s); err != nil {
			return err
		}

		stops, err := svc.stops.ListByRoute(ctx, in.RouteID)
		if err != nil {
			return err
		}
		addrs, err := svc.addressesFor(ctx, stops)
		if err != nil {
			return err
		}

		out.ETARecalc = svc.recalcDownstream(ctx, r, s, stops, addrs, now)

		open, err := svc.stops.CountOpen(ctx, in.RouteID)
		if err != nil {
			return err
		}
		routeCompleted := open == 0
		if routeCompleted {
			if err := r.Complete(now); err != nil {
				return svc.guardError(err)
			}
			if err := svc.routes.Save(ctx, r); err != nil {
				return err
			}
		}

		notif := svc.notificationSettings(ctx)
		brief := routeBrief(r, len(stops))
		driver := svc.driverBrief(ctx, r)
		sb := stopBrief(s, addrs[s.AddressID], notif)
		remaining := svc.remainingBriefs(stops, addrs, notif)
		terminalEvent := terminalStopEvent(s.Status)
		recalculated := out.ETARecalc == "recalculated"
		routeID := in.RouteID

		emissions = append(emissions, func(ctx context.Context) {
			svc.broker.Broadcast(ctx, routeID, contracts.EventStopStatusChanged, sb)
			svc.publishWebhookJob(ctx, terminalEvent, routeID,
				webhook.NewStopEvent(terminalEvent, brief, driver, sb, remaining, nil))
			if recalculated {
				svc.broker.Broadcast(ctx, routeID, contracts.EventETAUpdated, remaining)
				svc.publishWebhookJob(ctx, contracts.EventETAUpdated, routeID,
					webhook.NewETAUpdated(brief, driver, remaining, "stop_completed"))
			}
		})
		if routeCompleted {
			emissions = append(emissions, svc.routeCompletedEmissions(ctx, r, stops, addrs)...)
		}

		out.StopID = s.ID
		out.Status = s.Status.String()
		out.RouteCompleted = routeCompleted
		return nil
	})
	if err != nil {
		return ports.CompleteStopResult{}, err
	}

	svc.fire(ctx, emissions)
	svc.logger.Info(ctx, "stop_completed", "Stop moved to terminal status", map[string]any{
		"stop_id":         out.StopID,
		"status":          out.Status,
		"eta_recalc":      out.ETARecalc,
		"route_completed": out.RouteCompleted,
	})
	return out, nil
}

// recalcDownstream applies the deviation gate and, when tripped, rewalks the
// remaining schedule from the completed stop. A provider outage degrades to
// keeping the stale ETAs rather than failing the completion.
func (svc *dispatchService) recalcDownstream(ctx context.Context, r *route.Route, done *stop.Stop, stops []*stop.Stop, addrs map[string]*address.Address, completedAt time.Time) string {
	if eta.OnTime(completedAt, done.OriginalEstimatedArrival) {
		metrics.ETARecalcs.WithLabelValues("on_time").Inc()
		return "on_time"
	}

	var downstream []eta.Candidate
	for _, s := range stops {
		if !s.Open() || s.SequenceOrder <= done.SequenceOrder {
			continue
		}
		c := eta.Candidate{
			StopID:         s.ID,
			SequenceOrder:  s.SequenceOrder,
			ServiceMinutes: s.EstimatedMinutes,
		}
		if addr := addrs[s.AddressID]; addr != nil && addr.Geocoded() {
			c.Point = addr.Point
		}
		downstream = append(downstream, c)
	}
	if len(downstream) == 0 {
		metrics.ETARecalcs.WithLabelValues("on_time").Inc()
		return "on_time"
	}

	from := addrs[done.AddressID]
	if from == nil || !from.Geocoded() {
		metrics.ETARecalcs.WithLabelValues("failed").Inc()
		svc.logger.Error(ctx, "eta_recalc_skipped", "Completed stop has no coordinates", nil,
			map[string]any{"stop_id": done.ID})
		return "failed"
	}

	departAt := completedAt.Add(time.Duration(done.EstimatedMinutes) * time.Minute)
	provider := svc.etaProvider()
	updates, err := eta.Recalculate(ctx, provider, *from.Point, departAt, downstream)
	if err != nil {
		metrics.ETARecalcs.WithLabelValues("failed").Inc()
		svc.logger.Error(ctx, "eta_recalc_failed", "Keeping previous ETAs", err, nil)
		return "failed"
	}
	if err := svc.stops.BatchUpdateETAs(ctx, updates); err != nil {
		metrics.ETARecalcs.WithLabelValues("failed").Inc()
		svc.logger.Error(ctx, "eta_recalc_persist_failed", "Keeping previous ETAs", err, nil)
		return "failed"
	}

	// refresh the in-memory stops so the emitted snapshots carry the new ETAs
	byID := make(map[string]ports.ETAUpdate, len(updates))
	for _, u := range updates {
		byID[u.StopID] = u
	}
	lastPoint := *from.Point
	lastDepart := departAt
	for _, s := range stops {
		u, ok := byID[s.ID]
		if !ok {
			continue
		}
		s.SetEstimatedArrival(u.EstimatedArrival)
		tm := u.TravelMinutesFrom
		s.TravelMinutesFromPrevious = &tm
		if addr := addrs[s.AddressID]; addr != nil && addr.Geocoded() {
			lastPoint = *addr.Point
		}
		lastDepart = u.EstimatedArrival.Add(time.Duration(s.EstimatedMinutes) * time.Minute)
	}

	if ret, err := svc.depotReturn(ctx, r, lastPoint, lastDepart); err == nil && ret != nil {
		r.DepotReturnTime = ret
		if err := svc.routes.Save(ctx, r); err != nil {
			svc.logger.Error(ctx, "depot_return_persist_failed", "Failed to save depot return time", err, nil)
		}
	}

	metrics.ETARecalcs.WithLabelValues("recalculated").Inc()
	return "recalculated"
}

// depotReturn recomputes the return leg when the route has a resolvable origin.
func (svc *dispatchService) depotReturn(ctx context.Context, r *route.Route, last geo.Point, departAt time.Time) (*time.Time, error) {
	origin, err := svc.originPoint(ctx, r)
	if err != nil {
		return nil, nil
	}
	ret, err := eta.DepotReturn(ctx, svc.etaProvider(), last, departAt, *origin)
	if err != nil {
		svc.logger.Error(ctx, "depot_return_recalc_failed", "Keeping previous depot return time", err, nil)
		return nil, err
	}
	return &ret, nil
}

func (svc *dispatchService) lockStop(ctx context.Context, routeID, stopID string) (*stop.Stop, error) {
	s, err := svc.stops.GetByIDForUpdate(ctx, stopID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.RouteID != routeID {
		return nil, fmt.Errorf("%w: stop %s on route %s", ports.ErrNotFound, stopID, routeID)
	}
	return s, nil
}

func terminalStopEvent(status stop.Status) string {
	switch status {
	case stop.StatusCompleted:
		return contracts.EventStopCompleted
	case stop.StatusFailed:
		return contracts.EventStopFailed
	case stop.StatusSkipped:
		return contracts.EventStopSkipped
	default:
		return contracts.EventStopStatusChanged
	}
}
