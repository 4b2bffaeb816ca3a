package postgres

import (
	"context"
	"errors"

	"dispatch/internal/domain/payment"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// PaymentRepo persists payment rows using pgx and plain SQL.
type PaymentRepo struct{}

// NewPaymentRepo constructs a new PaymentRepo.
func NewPaymentRepo() ports.PaymentRepository {
	return &PaymentRepo{}
}

const paymentColumns = `
	id, stop_id, amount, method, status, customer_rut,
	transaction_id, bank_reference, verified_at, verified_by, created_at`

// Create inserts a new payment row.
func (repo *PaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO payments (stop_id, amount, method, status, customer_rut, transaction_id, bank_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`,
		p.StopID, p.Amount, p.Method.String(), p.Status.String(),
		p.CustomerRUT, p.TransactionID, p.BankReference,
	).Scan(&p.ID, &p.CreatedAt)
}

// ListByStop returns the stop's payments, oldest first.
func (repo *PaymentRepo) ListByStop(ctx context.Context, stopID string) ([]*payment.Payment, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE stop_id = $1
		ORDER BY created_at ASC
	`, stopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindPendingByReference matches an inbound verification event to the oldest
// pending row by transaction id first, then by customer RUT. Returns nil when
// nothing matches. The row is locked so concurrent verifications serialize.
func (repo *PaymentRepo) FindPendingByReference(ctx context.Context, transactionID, customerRUT string) (*payment.Payment, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := scanPayment(tx.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'PENDING'
		  AND (
		    ($1 <> '' AND transaction_id = $1)
		    OR ($1 = '' AND $2 <> '' AND customer_rut = $2)
		  )
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`, transactionID, customerRUT))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes back the verification state of a previously loaded payment.
func (repo *PaymentRepo) Save(ctx context.Context, p *payment.Payment) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments SET
			status = $2, transaction_id = $3, bank_reference = $4,
			verified_at = $5, verified_by = $6
		WHERE id = $1
	`, p.ID, p.Status.String(), p.TransactionID, p.BankReference, p.VerifiedAt, p.VerifiedBy)
	return err
}

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		out    payment.Payment
		method string
		status string
	)
	err := row.Scan(
		&out.ID, &out.StopID, &out.Amount, &method, &status, &out.CustomerRUT,
		&out.TransactionID, &out.BankReference, &out.VerifiedAt, &out.VerifiedBy, &out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.Method = payment.Method(method)
	out.Status = payment.Status(status)
	return &out, nil
}
