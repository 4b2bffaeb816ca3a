package postgres

import (
	"context"
	"errors"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/geo"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// AddressRepo persists shared delivery addresses using pgx and plain SQL.
type AddressRepo struct{}

// NewAddressRepo constructs a new AddressRepo.
func NewAddressRepo() ports.AddressRepository {
	return &AddressRepo{}
}

const addressColumns = `
	id, created_at, updated_at, street, city, full_address, lat, lng, geocode_status,
	customer_name, customer_phone, customer_rut, external_order_id, payment_method`

// Create inserts a new address row.
func (repo *AddressRepo) Create(ctx context.Context, a *address.Address) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var lat, lng *float64
	if a.Point != nil {
		lat, lng = &a.Point.Lat, &a.Point.Lng
	}

	return tx.QueryRow(ctx, `
		INSERT INTO addresses (
			street, city, full_address, lat, lng, geocode_status,
			customer_name, customer_phone, customer_rut, external_order_id, payment_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		a.Street, a.City, a.FullAddress, lat, lng, a.GeocodeStatus.String(),
		a.CustomerName, a.CustomerPhone, a.CustomerRUT, a.ExternalOrderID, a.PaymentMethod,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID fetches an address by primary key, or nil when absent.
func (repo *AddressRepo) GetByID(ctx context.Context, id string) (*address.Address, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	a, err := scanAddress(tx.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByIDs loads many addresses at once, keyed by id. Absent ids are simply missing.
func (repo *AddressRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*address.Address, error) {
	out := make(map[string]*address.Address, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// DeleteIfUnreferenced removes the address unless a stop still points at it.
// Returns true when the row was actually deleted.
func (repo *AddressRepo) DeleteIfUnreferenced(ctx context.Context, id string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM addresses a
		WHERE a.id = $1
		  AND NOT EXISTS (SELECT 1 FROM stops s WHERE s.address_id = a.id)
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanAddress(row pgx.Row) (*address.Address, error) {
	var (
		out      address.Address
		status   string
		lat, lng *float64
	)
	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.Street, &out.City, &out.FullAddress,
		&lat, &lng, &status,
		&out.CustomerName, &out.CustomerPhone, &out.CustomerRUT, &out.ExternalOrderID, &out.PaymentMethod,
	)
	if err != nil {
		return nil, err
	}
	out.GeocodeStatus = address.GeocodeStatus(status)
	if lat != nil && lng != nil {
		out.Point = &geo.Point{Lat: *lat, Lng: *lng}
	}
	return &out, nil
}
