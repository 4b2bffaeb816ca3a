package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// RefreshTokenRecord is the domain entity corresponding to the `refresh_tokens` table.
// Only the SHA-256 hash of the presented JWT is ever stored.
//
// Invariant: at most one row per (UserID, DeviceID) with RevokedAt == nil.
type RefreshTokenRecord struct {
	ID         string
	UserID     string
	TokenHash  string // hex(SHA-256(raw refresh JWT))
	DeviceID   string
	DeviceInfo *string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

var (
	ErrUserIDRequired  = errors.New("user id is required")
	ErrTokenRequired   = errors.New("refresh token is required")
	ErrAlreadyRevoked  = errors.New("refresh token already revoked")
	ErrExpiresInPast   = errors.New("expiry must be in the future")
	ErrDeviceIDMissing = errors.New("device id is required")
)

// HashToken returns the storage form of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewRecord builds an unsaved record for a freshly issued refresh token.
func NewRecord(userID, rawToken, deviceID string, deviceInfo *string, expiresAt time.Time) (*RefreshTokenRecord, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserIDRequired
	}
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrTokenRequired
	}
	if deviceID = strings.TrimSpace(deviceID); deviceID == "" {
		return nil, ErrDeviceIDMissing
	}

	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return nil, ErrExpiresInPast
	}

	return &RefreshTokenRecord{
		UserID:     userID,
		TokenHash:  HashToken(rawToken),
		DeviceID:   deviceID,
		DeviceInfo: deviceInfo,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}, nil
}

// Revoke marks the record revoked "now". Returns an error on double revoke.
func (rec *RefreshTokenRecord) Revoke() error {
	if rec.RevokedAt != nil {
		return ErrAlreadyRevoked
	}
	now := time.Now().UTC()
	rec.RevokedAt = &now
	return nil
}

// Usable reports whether the record can still be exchanged at the given instant.
func (rec *RefreshTokenRecord) Usable(at time.Time) bool {
	return rec.RevokedAt == nil && rec.ExpiresAt.After(at)
}
