package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/domain/session"
	"dispatch/internal/ports"
)

// Logout revokes the presented refresh token, or every session of the user
// when LogoutAll is set. Logout-all also clears the push token so a returned
// device stops receiving notifications. Access tokens expire naturally.
func (svc *authService) Logout(ctx context.Context, in ports.LogoutInput) error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user id is required", ports.ErrValidation)
	}

	return svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now()

		if in.LogoutAll {
			n, err := svc.tokens.RevokeAllForUser(ctx, in.UserID, now)
			if err != nil {
				return err
			}
			if err := svc.users.SetPushToken(ctx, in.UserID, nil); err != nil {
				return err
			}
			svc.logger.Info(ctx, "user_logged_out_all", "All sessions revoked", map[string]any{
				"user_id": in.UserID,
				"revoked": n,
			})
			return nil
		}

		raw := strings.TrimSpace(in.RefreshToken)
		if raw == "" {
			return fmt.Errorf("%w: refresh token or logoutAll is required", ports.ErrValidation)
		}

		rec, err := svc.tokens.FindUsable(ctx, in.UserID, session.HashToken(raw), now)
		if err != nil {
			return err
		}
		if rec == nil {
			// already revoked or never existed; logout is idempotent
			return nil
		}
		if _, err := svc.tokens.RevokeByID(ctx, rec.ID, now); err != nil {
			return err
		}

		svc.logger.Info(ctx, "user_logged_out", "Session revoked", map[string]any{
			"user_id":   in.UserID,
			"device_id": rec.DeviceID,
		})
		return nil
	})
}
