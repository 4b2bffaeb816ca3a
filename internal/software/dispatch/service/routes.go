package service

import (
	"context"
	"fmt"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/stop"
	"dispatch/internal/domain/user"
	"dispatch/internal/ports"

	"golang.org/x/crypto/bcrypt"
)

// CreateRoute creates an empty DRAFT route.
func (svc *dispatchService) CreateRoute(ctx context.Context, in ports.CreateRouteInput) (string, error) {
	r, err := route.NewRoute(in.Name, in.CreatedBy)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	r.DepotID = in.DepotID
	r.ScheduledDate = in.ScheduledDate
	if in.AssignedDriverID != nil {
		if err := r.AssignDriver(*in.AssignedDriverID); err != nil {
			return "", fmt.Errorf("%w: %v", ports.ErrValidation, err)
		}
	}

	err = svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		if in.DepotID != nil {
			d, err := svc.depots.GetByID(ctx, *in.DepotID)
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("%w: depot %s", ports.ErrNotFound, *in.DepotID)
			}
		}
		return svc.routes.Create(ctx, r)
	})
	if err != nil {
		return "", err
	}

	svc.logger.Info(svc.logger.WithRouteID(ctx, r.ID), "route_created", "Route created", map[string]any{
		"name":       r.Name,
		"created_by": r.CreatedBy,
	})
	return r.ID, nil
}

// ImportRoute creates a route, its addresses, and its stops in one
// transaction. Integrators send everything in a single call; per-stop
// defaults come from the delivery settings.
func (svc *dispatchService) ImportRoute(ctx context.Context, in ports.ImportRouteInput) (ports.ImportRouteResult, error) {
	if len(in.Stops) == 0 {
		return ports.ImportRouteResult{}, fmt.Errorf("%w: import needs at least one stop", ports.ErrValidation)
	}

	r, err := route.NewRoute(in.Name, in.CreatedBy)
	if err != nil {
		return ports.ImportRouteResult{}, fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	r.DepotID = in.DepotID

	var out ports.ImportRouteResult
	err = svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		delivery, err := svc.settings.GetDelivery(ctx)
		if err != nil {
			return err
		}

		if err := svc.routes.Create(ctx, r); err != nil {
			return err
		}

		for i, si := range in.Stops {
			addr, err := address.NewAddress(si.Street, si.City, si.FullAddress)
			if err != nil {
				return fmt.Errorf("%w: stop %d: %v", ports.ErrValidation, i+1, err)
			}
			addr.CustomerName = si.CustomerName
			addr.CustomerPhone = si.CustomerPhone
			addr.CustomerRUT = si.CustomerRUT
			addr.ExternalOrderID = si.ExternalOrderID
			addr.PaymentMethod = si.PaymentMethod
			if si.Lat != nil && si.Lng != nil {
				if err := addr.SetCoordinates(geo.Point{Lat: *si.Lat, Lng: *si.Lng}, address.GeocodeManual); err != nil {
					return fmt.Errorf("%w: stop %d: %v", ports.ErrValidation, i+1, err)
				}
			}
			if err := svc.addresses.Create(ctx, addr); err != nil {
				return err
			}

			serviceMin := delivery.ServiceMinutes
			if si.ServiceMinutes != nil {
				serviceMin = *si.ServiceMinutes
			}
			s, err := newImportedStop(r.ID, addr.ID, i+1, serviceMin, si, delivery.ProofEnabled, delivery.RequireSignature, delivery.RequirePhoto)
			if err != nil {
				return fmt.Errorf("%w: stop %d: %v", ports.ErrValidation, i+1, err)
			}
			if err := svc.stops.Create(ctx, s); err != nil {
				return err
			}
			out.StopIDs = append(out.StopIDs, s.ID)
		}

		out.RouteID = r.ID
		out.StopCount = len(out.StopIDs)
		return nil
	})
	if err != nil {
		return ports.ImportRouteResult{}, err
	}

	svc.logger.Info(svc.logger.WithRouteID(ctx, r.ID), "route_imported", "Route imported", map[string]any{
		"stop_count": out.StopCount,
	})
	return out, nil
}

// ReorderStops applies a caller-specified order before the route starts.
func (svc *dispatchService) ReorderStops(ctx context.Context, routeID string, orderedStopIDs []string) error {
	return svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.routes.GetByIDForUpdate(ctx, routeID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: route %s", ports.ErrNotFound, routeID)
		}
		if r.Status != route.StatusDraft && r.Status != route.StatusScheduled {
			return fmt.Errorf("%w: stops can only be reordered before the route starts", ports.ErrConflict)
		}

		current, err := svc.stops.ListByRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if len(current) != len(orderedStopIDs) {
			return fmt.Errorf("%w: order must name all %d stops", ports.ErrValidation, len(current))
		}
		known := make(map[string]bool, len(current))
		for _, s := range current {
			known[s.ID] = true
		}
		for _, id := range orderedStopIDs {
			if !known[id] {
				return fmt.Errorf("%w: stop %s is not on this route", ports.ErrValidation, id)
			}
			delete(known, id)
		}

		return svc.stops.Resequence(ctx, routeID, orderedStopIDs)
	})
}

// DeleteRoute removes a route and its now-unreferenced addresses. Anything
// past DRAFT requires an admin re-entering their password.
func (svc *dispatchService) DeleteRoute(ctx context.Context, in ports.DeleteRouteInput) error {
	return svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.routes.GetByIDForUpdate(ctx, in.RouteID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: route %s", ports.ErrNotFound, in.RouteID)
		}

		if r.Status != route.StatusDraft {
			if in.CallerRole != user.RoleAdmin.String() {
				return fmt.Errorf("%w: only admins may delete a non-draft route", ports.ErrForbidden)
			}
			caller, err := svc.users.GetByID(ctx, in.CallerID)
			if err != nil {
				return err
			}
			if caller == nil {
				return fmt.Errorf("%w: caller not found", ports.ErrForbidden)
			}
			if bcrypt.CompareHashAndPassword([]byte(caller.PasswordHash), []byte(in.AdminPassword)) != nil {
				return fmt.Errorf("%w: admin password mismatch", ports.ErrForbidden)
			}
		}

		stops, err := svc.stops.ListByRoute(ctx, in.RouteID)
		if err != nil {
			return err
		}
		if err := svc.routes.Delete(ctx, in.RouteID); err != nil {
			return err
		}
		for _, s := range stops {
			if _, err := svc.addresses.DeleteIfUnreferenced(ctx, s.AddressID); err != nil {
				return err
			}
		}

		svc.logger.Info(svc.logger.WithRouteID(ctx, in.RouteID), "route_deleted", "Route deleted", map[string]any{
			"status":     r.Status.String(),
			"stop_count": len(stops),
		})
		return nil
	})
}

func newImportedStop(routeID, addressID string, seq, serviceMin int, si ports.ImportStopInput, proofEnabled, reqSig, reqPhoto bool) (*stop.Stop, error) {
	s, err := stop.NewStop(routeID, addressID, seq, serviceMin)
	if err != nil {
		return nil, err
	}
	s.Priority = si.Priority
	s.TimeWindowStart = si.TimeWindowStart
	s.TimeWindowEnd = si.TimeWindowEnd
	s.CustomerRUT = si.CustomerRUT
	s.ExternalOrderID = si.ExternalOrderID
	s.Notes = si.Notes
	if si.PaymentMethod != nil {
		s.PaymentMethod = si.PaymentMethod
	}
	if proofEnabled {
		s.RequireSignature = reqSig
		s.RequirePhoto = reqPhoto
	}
	return s, nil
}
