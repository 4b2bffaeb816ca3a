package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/domain/session"
	"dispatch/internal/ports"
)

// Refresh rotates a refresh token: verify the JWT, then atomically find the
// live row by hash, revoke it, and insert the replacement. The conditional
// revoke on `revoked_at IS NULL` is the race arbiter: of any set of
// concurrent refreshes presenting the same token, exactly one rotates and the
// rest fail as replays.
func (svc *authService) Refresh(ctx context.Context, in ports.RefreshInput) (ports.RefreshResult, error) {
	raw := strings.TrimSpace(in.RefreshToken)
	if raw == "" {
		return ports.RefreshResult{}, fmt.Errorf("%w: refresh token is required", ports.ErrValidation)
	}

	claims, err := svc.refreshMgr.ParseRefresh(raw)
	if err != nil {
		return ports.RefreshResult{}, fmt.Errorf("%w: %v", ports.ErrTokenInvalid, err)
	}
	userID := claims.Subject
	hash := session.HashToken(raw)

	var out ports.RefreshResult
	err = svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now()

		rec, err := svc.tokens.FindUsable(ctx, userID, hash, now)
		if err != nil {
			return err
		}
		if rec == nil {
			// valid signature but no live row: expired, logged out, or replayed
			svc.logger.Error(ctx, "refresh_replay_detected", "Refresh token has no live row; possible replay", nil,
				map[string]any{"user_id": userID})
			return fmt.Errorf("%w: refresh token is not usable", ports.ErrTokenInvalid)
		}

		ok, err := svc.tokens.RevokeByID(ctx, rec.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			svc.logger.Error(ctx, "refresh_replay_detected", "Refresh token revoked by a concurrent rotation", nil,
				map[string]any{"user_id": userID})
			return fmt.Errorf("%w: refresh token already rotated", ports.ErrTokenInvalid)
		}

		u, err := svc.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("%w: user no longer exists", ports.ErrTokenInvalid)
		}
		if err := u.CanAuthenticate(); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrTokenInvalid, err)
		}

		deviceID := strings.TrimSpace(in.DeviceID)
		if deviceID == "" {
			deviceID = rec.DeviceID
		}

		pair, err := svc.issuePair(ctx, u, deviceID, rec.DeviceInfo)
		if err != nil {
			return err
		}

		out = ports.RefreshResult{
			AccessToken:  pair.access,
			RefreshToken: pair.refresh,
			DeviceID:     deviceID,
		}
		return nil
	})
	if err != nil {
		return ports.RefreshResult{}, err
	}

	svc.logger.Info(ctx, "token_refreshed", "Refresh token rotated", map[string]any{
		"user_id":   userID,
		"device_id": out.DeviceID,
	})
	return out, nil
}
