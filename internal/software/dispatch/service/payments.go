package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/domain/stop"
	"dispatch/internal/ports"
)

// HandlePaymentVerified matches an inbound bank verification event to a
// pending payment and settles it. Matching prefers the transaction id; the
// customer RUT is the fallback for banks that do not echo our id back.
func (svc *dispatchService) HandlePaymentVerified(ctx context.Context, in ports.PaymentVerifiedInput) error {
	if strings.TrimSpace(in.TransactionID) == "" && strings.TrimSpace(in.CustomerRUT) == "" {
		return fmt.Errorf("%w: event carries neither a transaction id nor a customer RUT", ports.ErrValidation)
	}

	return svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		p, err := svc.payments.FindPendingByReference(ctx, in.TransactionID, in.CustomerRUT)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: no pending payment matches the event", ports.ErrNotFound)
		}

		if in.Rejected {
			if err := p.Reject(in.VerifiedBy); err != nil {
				return fmt.Errorf("%w: %v", ports.ErrConflict, err)
			}
		} else {
			var txnID *string
			if in.TransactionID != "" {
				txnID = &in.TransactionID
			}
			if err := p.Verify(in.VerifiedBy, txnID, in.BankReference); err != nil {
				return fmt.Errorf("%w: %v", ports.ErrConflict, err)
			}
		}
		if err := svc.payments.Save(ctx, p); err != nil {
			return err
		}

		s, err := svc.stops.GetByIDForUpdate(ctx, p.StopID)
		if err != nil {
			return err
		}
		// a rejection leaves the stop's collection state pending; the driver
		// still has to collect at the door
		if s != nil && !in.Rejected {
			s.IsPaid = true
			s.PaymentStatus = stop.PaymentPaid
			s.PaymentAmount = &p.Amount
			if err := svc.stops.Save(ctx, s); err != nil {
				return err
			}
		}

		svc.logger.Info(ctx, "payment_settled", "Payment verification applied", map[string]any{
			"payment_id": p.ID,
			"stop_id":    p.StopID,
			"status":     p.Status.String(),
			"amount":     p.Amount,
		})
		return nil
	})
}

// TestWebhook delivers a synthetic event to the configured endpoint right now,
// bypassing the queue, so operators can verify their receiver end to end.
func (svc *dispatchService) TestWebhook(ctx context.Context) error {
	w, err := svc.webhookSettings(ctx)
	if err != nil {
		return err
	}
	if !w.Configured() {
		return fmt.Errorf("%w: webhook endpoint is not configured", ports.ErrValidation)
	}

	body, err := json.Marshal(map[string]any{
		"event":     "webhook.test",
		"timestamp": time.Now().UTC(),
		"message":   "dispatch webhook connectivity test",
	})
	if err != nil {
		return err
	}

	res := svc.dispatcher.Dispatch(ctx, w.URL, "webhook.test", body, w.Secret, 1)
	if !res.OK {
		if res.Err != nil {
			return fmt.Errorf("%w: %v", ports.ErrProviderUnavailable, res.Err)
		}
		return fmt.Errorf("%w: receiver returned %d", ports.ErrProviderUnavailable, res.HTTPStatus)
	}
	return nil
}
