package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashTokenIsDeterministicAndOpaque(t *testing.T) {
	raw := "eyJhbGciOiJIUzI1NiJ9.fake.refresh"

	h1 := HashToken(raw)
	h2 := HashToken(raw)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64) // hex sha256
	require.NotContains(t, h1, raw)

	require.NotEqual(t, h1, HashToken(raw+"x"))
}

func TestNewRecordValidation(t *testing.T) {
	exp := time.Now().Add(time.Hour)

	_, err := NewRecord("", "tok", "dev-1", nil, exp)
	require.ErrorIs(t, err, ErrUserIDRequired)

	_, err = NewRecord("user-1", "  ", "dev-1", nil, exp)
	require.ErrorIs(t, err, ErrTokenRequired)

	_, err = NewRecord("user-1", "tok", "", nil, exp)
	require.ErrorIs(t, err, ErrDeviceIDMissing)

	_, err = NewRecord("user-1", "tok", "dev-1", nil, time.Now().Add(-time.Minute))
	require.ErrorIs(t, err, ErrExpiresInPast)

	rec, err := NewRecord("user-1", "tok", "dev-1", nil, exp)
	require.NoError(t, err)
	require.Equal(t, HashToken("tok"), rec.TokenHash)
	require.Nil(t, rec.RevokedAt)
}

func TestRevokeOnce(t *testing.T) {
	rec, err := NewRecord("user-1", "tok", "dev-1", nil, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, rec.Revoke())
	require.NotNil(t, rec.RevokedAt)
	require.ErrorIs(t, rec.Revoke(), ErrAlreadyRevoked)
}

func TestUsable(t *testing.T) {
	now := time.Now()
	rec, err := NewRecord("user-1", "tok", "dev-1", nil, now.Add(time.Hour))
	require.NoError(t, err)

	require.True(t, rec.Usable(now))
	require.False(t, rec.Usable(now.Add(2*time.Hour)), "expired")

	require.NoError(t, rec.Revoke())
	require.False(t, rec.Usable(now), "revoked")
}
