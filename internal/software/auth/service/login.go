package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/domain/session"
	"dispatch/internal/domain/user"
	"dispatch/internal/ports"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Login verifies credentials and issues a token pair. Any live refresh token
// for the same device is revoked first, so one device holds one session.
func (svc *authService) Login(ctx context.Context, in ports.LoginInput) (ports.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return ports.LoginResult{}, fmt.Errorf("%w: email and password are required", ports.ErrValidation)
	}

	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	var out ports.LoginResult
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		u, err := svc.users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u == nil {
			// burn a comparison anyway so absent and present users cost the same
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(in.Password))
			return fmt.Errorf("%w: bad credentials", ports.ErrUnauthenticated)
		}
		if err := u.CanAuthenticate(); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrUnauthenticated, err)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
			return fmt.Errorf("%w: bad credentials", ports.ErrUnauthenticated)
		}

		pair, err := svc.issuePair(ctx, u, deviceID, in.DeviceInfo)
		if err != nil {
			return err
		}

		if err := svc.users.TouchLogin(ctx, u.ID, time.Now()); err != nil {
			return err
		}

		out = ports.LoginResult{
			User: ports.UserView{
				ID:       u.ID,
				Email:    u.Email,
				Role:     u.Role.String(),
				IsActive: u.IsActive,
			},
			AccessToken:  pair.access,
			RefreshToken: pair.refresh,
			DeviceID:     deviceID,
		}
		return nil
	})
	if err != nil {
		return ports.LoginResult{}, err
	}

	svc.logger.Info(ctx, "user_logged_in", "User authenticated", map[string]any{
		"user_id":   out.User.ID,
		"role":      out.User.Role,
		"device_id": deviceID,
	})
	return out, nil
}

type tokenPair struct {
	access  string
	refresh string
}

// issuePair mints both tokens and stores the refresh hash, replacing any live
// row for the same device. Must run inside a transaction.
func (svc *authService) issuePair(ctx context.Context, u *user.User, deviceID string, deviceInfo *string) (tokenPair, error) {
	access, _, err := svc.accessMgr.IssueAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, claims, err := svc.refreshMgr.IssueRefreshToken(u.ID)
	if err != nil {
		return tokenPair{}, err
	}

	if err := svc.tokens.RevokeForDevice(ctx, u.ID, deviceID, time.Now()); err != nil {
		return tokenPair{}, err
	}

	rec, err := session.NewRecord(u.ID, refresh, deviceID, deviceInfo, claims.ExpiresAt.Time)
	if err != nil {
		return tokenPair{}, err
	}
	if err := svc.tokens.Insert(ctx, rec); err != nil {
		return tokenPair{}, err
	}

	return tokenPair{access: access, refresh: refresh}, nil
}
