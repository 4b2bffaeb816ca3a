package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/stop"
	"dispatch/internal/eta"
	"dispatch/internal/general/contracts"
	"dispatch/internal/ports"
	"dispatch/internal/webhook"
)

// emission is a post-commit notification. State changes collect emissions
// inside the transaction and fire them only once the mutation is durable.
type emission func(ctx context.Context)

func (svc *dispatchService) fire(ctx context.Context, emissions []emission) {
	for _, e := range emissions {
		e(ctx)
	}
}

// SendRoute transitions DRAFT -> SCHEDULED and notifies the driver.
func (svc *dispatchService) SendRoute(ctx context.Context, routeID string) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	var emissions []emission
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if err := r.Send(); err != nil {
			return svc.guardError(err)
		}
		if err := svc.routes.Save(ctx, r); err != nil {
			return err
		}

		n, err := svc.stops.CountOpen(ctx, routeID)
		if err != nil {
			return err
		}
		brief := routeBrief(r, n)
		driverID := *r.AssignedDriverID
		emissions = append(emissions, func(ctx context.Context) {
			svc.broker.Broadcast(ctx, routeID, contracts.EventRouteSent, brief)
			svc.publishPushJob(ctx, driverID, contracts.EventRouteSent, map[string]string{
				"routeId":   routeID,
				"routeName": brief.Name,
			})
		})
		return nil
	})
	if err != nil {
		return err
	}

	svc.fire(ctx, emissions)
	svc.logger.Info(ctx, "route_sent", "Route sent to driver", nil)
	return nil
}

// UnsendRoute pulls a SCHEDULED route back to DRAFT before the driver starts.
func (svc *dispatchService) UnsendRoute(ctx context.Context, routeID string) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if err := r.Unsend(); err != nil {
			return svc.guardError(err)
		}
		return svc.routes.Save(ctx, r)
	})
	if err != nil {
		return err
	}

	svc.logger.Info(ctx, "route_unsent", "Route pulled back to draft", nil)
	return nil
}

// StartRoute transitions SCHEDULED -> IN_PROGRESS and freezes the original
// ETAs. The frozen schedule is the contract with the customer; it never
// changes again.
func (svc *dispatchService) StartRoute(ctx context.Context, routeID string) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	var emissions []emission
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}
		em, err := svc.startLocked(ctx, r, time.Now())
		if err != nil {
			return err
		}
		emissions = em
		return nil
	})
	if err != nil {
		return err
	}

	svc.fire(ctx, emissions)
	svc.logger.Info(ctx, "route_started", "Route started; original ETAs frozen", nil)
	return nil
}

// startLocked performs the start transition on an already-locked route.
// Shared between StartRoute and the auto-promotion in CompleteStop.
func (svc *dispatchService) startLocked(ctx context.Context, r *route.Route, now time.Time) ([]emission, error) {
	if r.AssignedDriverID != nil {
		active, err := svc.routes.GetActiveForDriver(ctx, *r.AssignedDriverID)
		if err != nil {
			return nil, err
		}
		if active != nil && active.ID != r.ID {
			return nil, fmt.Errorf("%w: driver already has active route %s", ports.ErrConflict, active.ID)
		}
	}

	if err := r.Start(now); err != nil {
		return nil, svc.guardError(err)
	}

	stops, err := svc.stops.ListByRoute(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if err := eta.Freeze(stops, now); err != nil {
		return nil, err
	}
	for _, s := range stops {
		if err := svc.stops.Save(ctx, s); err != nil {
			return nil, err
		}
	}
	if err := svc.routes.Save(ctx, r); err != nil {
		return nil, err
	}

	addrs, err := svc.addressesFor(ctx, stops)
	if err != nil {
		return nil, err
	}
	notif := svc.notificationSettings(ctx)
	brief := routeBrief(r, len(stops))
	driver := svc.driverBrief(ctx, r)
	remaining := svc.remainingBriefs(stops, addrs, notif)
	routeID := r.ID

	return []emission{func(ctx context.Context) {
		svc.broker.Broadcast(ctx, routeID, contracts.EventRouteStarted, brief)
		svc.publishWebhookJob(ctx, contracts.EventRouteStarted, routeID,
			webhook.NewRouteEvent(contracts.EventRouteStarted, brief, driver, remaining))
	}}, nil
}

// PauseRoute transitions IN_PROGRESS -> PAUSED.
func (svc *dispatchService) PauseRoute(ctx context.Context, routeID string) error {
	return svc.simpleTransition(ctx, routeID, "route_paused", func(r *route.Route) error {
		return r.Pause()
	})
}

// ResumeRoute transitions PAUSED -> IN_PROGRESS.
func (svc *dispatchService) ResumeRoute(ctx context.Context, routeID string) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if r.AssignedDriverID != nil {
			active, err := svc.routes.GetActiveForDriver(ctx, *r.AssignedDriverID)
			if err != nil {
				return err
			}
			if active != nil && active.ID != r.ID && active.Status == route.StatusInProgress {
				return fmt.Errorf("%w: driver already has active route %s", ports.ErrConflict, active.ID)
			}
		}
		if err := r.Resume(); err != nil {
			return svc.guardError(err)
		}
		return svc.routes.Save(ctx, r)
	})
	if err != nil {
		return err
	}

	svc.logger.Info(ctx, "route_resumed", "Route resumed", nil)
	return nil
}

// CompleteRoute finishes the route manually. Stops the driver never reached
// are marked SKIPPED so a completed route always has only terminal stops.
func (svc *dispatchService) CompleteRoute(ctx context.Context, routeID string) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	var emissions []emission
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		stops, err := svc.stops.ListByRoute(ctx, routeID)
		if err != nil {
			return err
		}
		skipNote := "skipped at manual route completion"
		for _, s := range stops {
			if !s.Open() {
				continue
			}
			if err := s.Finish(stop.StatusSkipped, now, stop.TerminalInput{Notes: &skipNote}); err != nil {
				return err
			}
			if err := svc.stops.Save(ctx, s); err != nil {
				return err
			}
		}

		if err := r.Complete(now); err != nil {
			return svc.guardError(err)
		}
		if err := svc.routes.Save(ctx, r); err != nil {
			return err
		}

		emissions = svc.routeCompletedEmissions(ctx, r, stops, nil)
		return nil
	})
	if err != nil {
		return err
	}

	svc.fire(ctx, emissions)
	svc.logger.Info(ctx, "route_completed", "Route completed", nil)
	return nil
}

// routeCompletedEmissions builds the fan-out for a route completion.
// addrs may be nil; it is loaded on demand.
func (svc *dispatchService) routeCompletedEmissions(ctx context.Context, r *route.Route, stops []*stop.Stop, addrs map[string]*address.Address) []emission {
	if addrs == nil {
		var err error
		addrs, err = svc.addressesFor(ctx, stops)
		if err != nil {
			svc.logger.Error(ctx, "route_completed_snapshot_failed", "Failed to load addresses for completion event", err, nil)
			addrs = map[string]*address.Address{}
		}
	}
	notif := svc.notificationSettings(ctx)
	brief := routeBrief(r, len(stops))
	driver := svc.driverBrief(ctx, r)
	remaining := svc.remainingBriefs(stops, addrs, notif)
	routeID := r.ID
	creator := r.CreatedBy

	return []emission{func(ctx context.Context) {
		svc.broker.Broadcast(ctx, routeID, contracts.EventRouteCompleted, brief)
		svc.publishWebhookJob(ctx, contracts.EventRouteCompleted, routeID,
			webhook.NewRouteEvent(contracts.EventRouteCompleted, brief, driver, remaining))
		svc.publishPushJob(ctx, creator, contracts.EventRouteCompleted, map[string]string{
			"routeId":   routeID,
			"routeName": brief.Name,
		})
	}}
}

// ----- shared helpers -----

func (svc *dispatchService) lockRoute(ctx context.Context, routeID string) (*route.Route, error) {
	r, err := svc.routes.GetByIDForUpdate(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: route %s", ports.ErrNotFound, routeID)
	}
	return r, nil
}

func (svc *dispatchService) simpleTransition(ctx context.Context, routeID, action string, fn func(*route.Route) error) error {
	ctx = svc.logger.WithRouteID(ctx, routeID)

	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.lockRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return svc.guardError(err)
		}
		return svc.routes.Save(ctx, r)
	})
	if err != nil {
		return err
	}

	svc.logger.Info(ctx, action, "Route transition applied", nil)
	return nil
}

// guardError maps domain guard violations to the Conflict kind.
func (svc *dispatchService) guardError(err error) error {
	switch {
	case errors.Is(err, route.ErrInvalidStatusTransition),
		errors.Is(err, route.ErrNotOptimized),
		errors.Is(err, route.ErrNoDriverAssigned),
		errors.Is(err, route.ErrAlreadySent),
		errors.Is(err, route.ErrAlreadyStarted),
		errors.Is(err, route.ErrNotInProgress),
		errors.Is(err, route.ErrDriverBusy),
		errors.Is(err, stop.ErrAlreadyTerminal),
		errors.Is(err, stop.ErrInvalidStatusTransition):
		return fmt.Errorf("%w: %v", ports.ErrConflict, err)
	case errors.Is(err, stop.ErrSignatureRequired), errors.Is(err, stop.ErrPhotoRequired):
		return fmt.Errorf("%w: %v", ports.ErrValidation, err)
	default:
		return err
	}
}
