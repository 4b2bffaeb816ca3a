package postgres

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/domain/depot"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DepotRepo persists depots using pgx and plain SQL.
type DepotRepo struct{}

// NewDepotRepo constructs a new DepotRepo.
func NewDepotRepo() ports.DepotRepository {
	return &DepotRepo{}
}

const depotColumns = `
	id, created_at, updated_at, name, address, lat, lng,
	default_departure_time, default_service_minutes,
	eta_window_before_min, eta_window_after_min, is_default, is_active`

// Create inserts a new depot row.
func (repo *DepotRepo) Create(ctx context.Context, d *depot.Depot) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO depots (
			name, address, lat, lng, default_departure_time, default_service_minutes,
			eta_window_before_min, eta_window_after_min, is_default, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		d.Name, d.Address, d.Point.Lat, d.Point.Lng,
		d.DefaultDepartureTime, d.DefaultServiceMinutes,
		int(d.ETAWindowBefore/time.Minute), int(d.ETAWindowAfter/time.Minute),
		d.IsDefault, d.IsActive,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// GetByID fetches a depot by primary key, or nil when absent.
func (repo *DepotRepo) GetByID(ctx context.Context, id string) (*depot.Depot, error) {
	return repo.getOne(ctx, `SELECT `+depotColumns+` FROM depots WHERE id = $1`, id)
}

// GetDefault returns the active default depot, or nil when none is marked.
func (repo *DepotRepo) GetDefault(ctx context.Context) (*depot.Depot, error) {
	return repo.getOne(ctx, `
		SELECT `+depotColumns+` FROM depots
		WHERE is_default AND is_active
		LIMIT 1
	`)
}

func (repo *DepotRepo) getOne(ctx context.Context, query string, args ...any) (*depot.Depot, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out                 depot.Depot
		beforeMin, afterMin int
	)
	err = tx.QueryRow(ctx, query, args...).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.Name, &out.Address,
		&out.Point.Lat, &out.Point.Lng,
		&out.DefaultDepartureTime, &out.DefaultServiceMinutes,
		&beforeMin, &afterMin, &out.IsDefault, &out.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out.ETAWindowBefore = time.Duration(beforeMin) * time.Minute
	out.ETAWindowAfter = time.Duration(afterMin) * time.Minute
	return &out, nil
}
