package postgres

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/route"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// RouteRepo persists routes using pgx and plain SQL.
type RouteRepo struct{}

// NewRouteRepo constructs a new RouteRepo.
func NewRouteRepo() ports.RouteRepository {
	return &RouteRepo{}
}

const routeColumns = `
	id, name, created_by, created_at, updated_at, status, scheduled_date, departure_time,
	depot_id, origin_lat, origin_lng, origin_address,
	assigned_driver_id, sent_at, loaded_at, started_at, actual_start_time, paused_at, completed_at,
	total_distance_km, total_duration_min, optimized_at, optimization_hash, depot_return_time,
	driver_lat, driver_lng, driver_location_at, driver_heading, driver_speed`

// Create inserts a new route row.
func (repo *RouteRepo) Create(ctx context.Context, r *route.Route) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO routes (name, created_by, status, scheduled_date, departure_time, depot_id, assigned_driver_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		r.Name,
		r.CreatedBy,
		r.Status.String(),
		r.ScheduledDate,
		r.DepartureTime,
		r.DepotID,
		r.AssignedDriverID,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

// GetByID fetches a route by primary key, or nil when absent.
func (repo *RouteRepo) GetByID(ctx context.Context, id string) (*route.Route, error) {
	return repo.getOne(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id)
}

// GetByIDForUpdate locks the route row for the remainder of the transaction.
// All state-machine transitions go through this lock.
func (repo *RouteRepo) GetByIDForUpdate(ctx context.Context, id string) (*route.Route, error) {
	return repo.getOne(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1 FOR UPDATE`, id)
}

// GetActiveForDriver returns the driver's IN_PROGRESS or PAUSED route, or nil.
func (repo *RouteRepo) GetActiveForDriver(ctx context.Context, driverID string) (*route.Route, error) {
	return repo.getOne(ctx, `
		SELECT `+routeColumns+` FROM routes
		WHERE assigned_driver_id = $1 AND status IN ('IN_PROGRESS', 'PAUSED')
		LIMIT 1
	`, driverID)
}

// Save writes back every mutable column of a previously loaded route.
func (repo *RouteRepo) Save(ctx context.Context, r *route.Route) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var originLat, originLng *float64
	if r.OriginPoint != nil {
		originLat, originLng = &r.OriginPoint.Lat, &r.OriginPoint.Lng
	}
	var driverLat, driverLng *float64
	if r.DriverPoint != nil {
		driverLat, driverLng = &r.DriverPoint.Lat, &r.DriverPoint.Lng
	}

	_, err = tx.Exec(ctx, `
		UPDATE routes SET
			name = $2, updated_at = $3, status = $4, scheduled_date = $5, departure_time = $6,
			depot_id = $7, origin_lat = $8, origin_lng = $9, origin_address = $10,
			assigned_driver_id = $11, sent_at = $12, loaded_at = $13, started_at = $14,
			actual_start_time = $15, paused_at = $16, completed_at = $17,
			total_distance_km = $18, total_duration_min = $19, optimized_at = $20,
			optimization_hash = $21, depot_return_time = $22,
			driver_lat = $23, driver_lng = $24, driver_location_at = $25,
			driver_heading = $26, driver_speed = $27
		WHERE id = $1
	`,
		r.ID, r.Name, r.UpdatedAt, r.Status.String(), r.ScheduledDate, r.DepartureTime,
		r.DepotID, originLat, originLng, r.OriginAddress,
		r.AssignedDriverID, r.SentAt, r.LoadedAt, r.StartedAt,
		r.ActualStartTime, r.PausedAt, r.CompletedAt,
		r.TotalDistanceKM, r.TotalDurationMin, r.OptimizedAt,
		r.OptimizationHash, r.DepotReturnTime,
		driverLat, driverLng, r.DriverLocationAt,
		r.DriverHeading, r.DriverSpeed,
	)
	return err
}

// UpdateDriverLocation writes the live telemetry columns atomically (last writer wins).
func (repo *RouteRepo) UpdateDriverLocation(ctx context.Context, routeID string, p geo.Point, heading, speed *float64, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE routes SET
			driver_lat = $2, driver_lng = $3, driver_location_at = $4,
			driver_heading = $5, driver_speed = $6, updated_at = now()
		WHERE id = $1
	`, routeID, p.Lat, p.Lng, at.UTC(), heading, speed)
	return err
}

// Delete removes the route; stops cascade at the schema level.
func (repo *RouteRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	return err
}

func (repo *RouteRepo) getOne(ctx context.Context, query string, arg any) (*route.Route, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out                  route.Route
		status               string
		originLat, originLng *float64
		driverLat, driverLng *float64
	)
	err = tx.QueryRow(ctx, query, arg).Scan(
		&out.ID, &out.Name, &out.CreatedBy, &out.CreatedAt, &out.UpdatedAt, &status,
		&out.ScheduledDate, &out.DepartureTime,
		&out.DepotID, &originLat, &originLng, &out.OriginAddress,
		&out.AssignedDriverID, &out.SentAt, &out.LoadedAt, &out.StartedAt,
		&out.ActualStartTime, &out.PausedAt, &out.CompletedAt,
		&out.TotalDistanceKM, &out.TotalDurationMin, &out.OptimizedAt,
		&out.OptimizationHash, &out.DepotReturnTime,
		&driverLat, &driverLng, &out.DriverLocationAt, &out.DriverHeading, &out.DriverSpeed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out.Status = route.Status(status)
	if originLat != nil && originLng != nil {
		out.OriginPoint = &geo.Point{Lat: *originLat, Lng: *originLng}
	}
	if driverLat != nil && driverLng != nil {
		out.DriverPoint = &geo.Point{Lat: *driverLat, Lng: *driverLng}
	}

	return &out, nil
}
