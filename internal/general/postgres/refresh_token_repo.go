package postgres

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/domain/session"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// RefreshTokenRepo persists single-use refresh token rows.
//
// Schema note: a partial unique index enforces the domain invariant:
//
//	CREATE UNIQUE INDEX refresh_tokens_live_device
//	ON refresh_tokens (user_id, device_id) WHERE revoked_at IS NULL;
type RefreshTokenRepo struct{}

// NewRefreshTokenRepo constructs a new RefreshTokenRepo.
func NewRefreshTokenRepo() ports.RefreshTokenRepository {
	return &RefreshTokenRepo{}
}

// Insert stores a freshly issued refresh token row.
func (repo *RefreshTokenRepo) Insert(ctx context.Context, rec *session.RefreshTokenRecord) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, device_id, device_info, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		rec.UserID,
		rec.TokenHash,
		rec.DeviceID,
		rec.DeviceInfo,
		rec.IssuedAt,
		rec.ExpiresAt,
	).Scan(&rec.ID)
}

// FindUsable returns the live row matching (userID, tokenHash), or nil.
// The row is locked for the rest of the transaction so the subsequent
// conditional revoke serializes against concurrent refreshes.
func (repo *RefreshTokenRepo) FindUsable(ctx context.Context, userID, tokenHash string, now time.Time) (*session.RefreshTokenRecord, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out session.RefreshTokenRecord
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, token_hash, device_id, device_info, issued_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL AND expires_at > $3
		FOR UPDATE
	`, userID, tokenHash, now.UTC()).Scan(
		&out.ID, &out.UserID, &out.TokenHash, &out.DeviceID, &out.DeviceInfo,
		&out.IssuedAt, &out.ExpiresAt, &out.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// RevokeByID marks the row revoked only if it is still live.
// Exactly one of any set of racing refreshes observes true here.
func (repo *RefreshTokenRepo) RevokeByID(ctx context.Context, id string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// RevokeForDevice revokes any live row for (userID, deviceID).
// Called right before inserting a replacement row for the same device.
func (repo *RefreshTokenRepo) RevokeForDevice(ctx context.Context, userID, deviceID string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $3
		WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL
	`, userID, deviceID, at.UTC())
	return err
}

// RevokeAllForUser revokes every live row for the user (logout-all).
func (repo *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, at.UTC())
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}
