package postgres

import (
	"context"
	"errors"

	"dispatch/internal/domain/stop"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// StopRepo persists stops using pgx and plain SQL.
type StopRepo struct{}

// NewStopRepo constructs a new StopRepo.
func NewStopRepo() ports.StopRepository {
	return &StopRepo{}
}

const stopColumns = `
	id, route_id, address_id, created_at, updated_at, sequence_order, status,
	estimated_minutes, priority, time_window_start, time_window_end,
	estimated_arrival, original_estimated_arrival, travel_minutes_from_previous,
	arrived_at, completed_at,
	require_signature, require_photo, signature_url, photo_url,
	is_paid, payment_status, payment_method, payment_amount,
	customer_rut, external_order_id, notes, failure_reason`

// Create inserts a new stop row.
func (repo *StopRepo) Create(ctx context.Context, s *stop.Stop) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO stops (
			route_id, address_id, sequence_order, status,
			estimated_minutes, priority, time_window_start, time_window_end,
			require_signature, require_photo,
			is_paid, payment_status, payment_method, payment_amount,
			customer_rut, external_order_id, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`,
		s.RouteID, s.AddressID, s.SequenceOrder, s.Status.String(),
		s.EstimatedMinutes, s.Priority, s.TimeWindowStart, s.TimeWindowEnd,
		s.RequireSignature, s.RequirePhoto,
		s.IsPaid, string(s.PaymentStatus), s.PaymentMethod, s.PaymentAmount,
		s.CustomerRUT, s.ExternalOrderID, s.Notes,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID fetches a stop by primary key, or nil when absent.
func (repo *StopRepo) GetByID(ctx context.Context, id string) (*stop.Stop, error) {
	return repo.getOne(ctx, `SELECT `+stopColumns+` FROM stops WHERE id = $1`, id)
}

// GetByIDForUpdate locks the stop row. Concurrent terminal transitions serialize
// on this lock and the loser re-reads the winner's terminal status.
func (repo *StopRepo) GetByIDForUpdate(ctx context.Context, id string) (*stop.Stop, error) {
	return repo.getOne(ctx, `SELECT `+stopColumns+` FROM stops WHERE id = $1 FOR UPDATE`, id)
}

// ListByRoute returns the route's stops ordered by sequence.
func (repo *StopRepo) ListByRoute(ctx context.Context, routeID string) ([]*stop.Stop, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+stopColumns+` FROM stops
		WHERE route_id = $1
		ORDER BY sequence_order ASC
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*stop.Stop
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save writes back every mutable column of a previously loaded stop.
func (repo *StopRepo) Save(ctx context.Context, s *stop.Stop) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE stops SET
			updated_at = $2, sequence_order = $3, status = $4,
			estimated_minutes = $5, priority = $6, time_window_start = $7, time_window_end = $8,
			estimated_arrival = $9, original_estimated_arrival = $10, travel_minutes_from_previous = $11,
			arrived_at = $12, completed_at = $13,
			require_signature = $14, require_photo = $15, signature_url = $16, photo_url = $17,
			is_paid = $18, payment_status = $19, payment_method = $20, payment_amount = $21,
			customer_rut = $22, external_order_id = $23, notes = $24, failure_reason = $25
		WHERE id = $1
	`,
		s.ID, s.UpdatedAt, s.SequenceOrder, s.Status.String(),
		s.EstimatedMinutes, s.Priority, s.TimeWindowStart, s.TimeWindowEnd,
		s.EstimatedArrival, s.OriginalEstimatedArrival, s.TravelMinutesFromPrevious,
		s.ArrivedAt, s.CompletedAt,
		s.RequireSignature, s.RequirePhoto, s.SignatureURL, s.PhotoURL,
		s.IsPaid, string(s.PaymentStatus), s.PaymentMethod, s.PaymentAmount,
		s.CustomerRUT, s.ExternalOrderID, s.Notes, s.FailureReason,
	)
	return err
}

// BatchUpdateETAs rewrites the live ETA columns for many stops in one batch.
// The frozen original_estimated_arrival column is never touched here.
func (repo *StopRepo) BatchUpdateETAs(ctx context.Context, updates []ports.ETAUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`
			UPDATE stops SET
				estimated_arrival = $2,
				travel_minutes_from_previous = $3,
				updated_at = now()
			WHERE id = $1
		`, u.StopID, u.EstimatedArrival.UTC(), u.TravelMinutesFrom)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range updates {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// Resequence applies a new order in two phases: every affected row first moves
// to the negation of its target position, then all rows flip positive at once.
// The (route_id, sequence_order) unique constraint never observes a duplicate.
func (repo *StopRepo) Resequence(ctx context.Context, routeID string, orderedStopIDs []string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	neg := &pgx.Batch{}
	for i, id := range orderedStopIDs {
		neg.Queue(`
			UPDATE stops SET sequence_order = $3, updated_at = now()
			WHERE id = $1 AND route_id = $2
		`, id, routeID, -(i + 1))
	}
	results := tx.SendBatch(ctx, neg)
	for _, id := range orderedStopIDs {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return err
		}
		if tag.RowsAffected() != 1 {
			results.Close()
			return errors.New("resequence: stop " + id + " not found on route")
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE stops SET sequence_order = -sequence_order
		WHERE route_id = $1 AND sequence_order < 0
	`, routeID)
	return err
}

// CountOpen returns how many stops on the route still await the driver.
func (repo *StopRepo) CountOpen(ctx context.Context, routeID string) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM stops
		WHERE route_id = $1 AND status IN ('PENDING', 'IN_TRANSIT', 'ARRIVED')
	`, routeID).Scan(&n)
	return n, err
}

func (repo *StopRepo) getOne(ctx context.Context, query string, arg any) (*stop.Stop, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	s, err := scanStop(tx.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanStop(row pgx.Row) (*stop.Stop, error) {
	var (
		out           stop.Stop
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&out.ID, &out.RouteID, &out.AddressID, &out.CreatedAt, &out.UpdatedAt,
		&out.SequenceOrder, &status,
		&out.EstimatedMinutes, &out.Priority, &out.TimeWindowStart, &out.TimeWindowEnd,
		&out.EstimatedArrival, &out.OriginalEstimatedArrival, &out.TravelMinutesFromPrevious,
		&out.ArrivedAt, &out.CompletedAt,
		&out.RequireSignature, &out.RequirePhoto, &out.SignatureURL, &out.PhotoURL,
		&out.IsPaid, &paymentStatus, &out.PaymentMethod, &out.PaymentAmount,
		&out.CustomerRUT, &out.ExternalOrderID, &out.Notes, &out.FailureReason,
	)
	if err != nil {
		return nil, err
	}
	out.Status = stop.Status(status)
	out.PaymentStatus = stop.PaymentStatus(paymentStatus)
	return &out, nil
}
