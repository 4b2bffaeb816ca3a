package postgres

import (
	"context"

	"dispatch/internal/domain/geo"
	"dispatch/internal/ports"
)

// TrackingRepo archives driver position samples in the append-only
// `tracking_points` table.
type TrackingRepo struct{}

// NewTrackingRepo constructs a new TrackingRepo.
func NewTrackingRepo() ports.TrackingRepository {
	return &TrackingRepo{}
}

// Append inserts one position sample.
func (repo *TrackingRepo) Append(ctx context.Context, p *geo.TrackingPoint) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO tracking_points (route_id, lat, lng, heading_degrees, speed_kmh, accuracy_meters, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		p.RouteID, p.Point.Lat, p.Point.Lng,
		p.HeadingDegrees, p.SpeedKMH, p.AccuracyMeters, p.RecordedAt,
	).Scan(&p.ID)
}

// ListByRoute returns up to limit samples for the route, newest first.
func (repo *TrackingRepo) ListByRoute(ctx context.Context, routeID string, limit int) ([]*geo.TrackingPoint, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	rows, err := tx.Query(ctx, `
		SELECT id, route_id, lat, lng, heading_degrees, speed_kmh, accuracy_meters, recorded_at
		FROM tracking_points
		WHERE route_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, routeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*geo.TrackingPoint
	for rows.Next() {
		var p geo.TrackingPoint
		if err := rows.Scan(
			&p.ID, &p.RouteID, &p.Point.Lat, &p.Point.Lng,
			&p.HeadingDegrees, &p.SpeedKMH, &p.AccuracyMeters, &p.RecordedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
