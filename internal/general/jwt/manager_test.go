package jwt

import (
	"net/http/httptest"
	"testing"
	"time"

	"dispatch/internal/domain/user"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewManager(testSecret, 15*time.Minute)

	signed, issued, err := m.IssueAccessToken("user-1", "ops@example.com", user.RoleOperator)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	require.False(t, issued.IsRefresh())

	_, claims, err := m.ParseAndValidate(signed)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "ops@example.com", claims.Email)
	require.Equal(t, user.RoleOperator, claims.Role)
}

func TestAccessTokenRejectsInvalidRole(t *testing.T) {
	m := NewManager(testSecret, 15*time.Minute)
	_, _, err := m.IssueAccessToken("user-1", "x@example.com", user.Role("SUPERUSER"))
	require.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	m := NewManager(testSecret, 15*time.Minute)
	other := NewManager("another-secret-another-secret-xx", 15*time.Minute)

	signed, _, err := m.IssueAccessToken("user-1", "x@example.com", user.RoleDriver)
	require.NoError(t, err)

	_, _, err = other.ParseAndValidate(signed)
	require.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewManager(testSecret, -time.Minute)

	signed, _, err := m.IssueAccessToken("user-1", "x@example.com", user.RoleAdmin)
	require.NoError(t, err)

	_, _, err = m.ParseAndValidate(signed)
	require.Error(t, err)
}

func TestParseRefreshEnforcesTypeClaim(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	refresh, _, err := m.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err := m.ParseRefresh(refresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.IsRefresh())
	require.NotEmpty(t, claims.ID)

	// back-to-back issuance never repeats a token
	again, _, err := m.IssueRefreshToken("user-1")
	require.NoError(t, err)
	require.NotEqual(t, refresh, again)

	// an access token presented as a refresh token is rejected
	access, _, err := m.IssueAccessToken("user-1", "x@example.com", user.RoleDriver)
	require.NoError(t, err)
	_, err = m.ParseRefresh(access)
	require.ErrorIs(t, err, ErrNotRefreshToken)
}

func TestRoleAllowed(t *testing.T) {
	cl := &Claims{Role: user.RoleDriver}
	require.NoError(t, RoleAllowed(cl, user.RoleAdmin, user.RoleDriver))
	require.ErrorIs(t, RoleAllowed(cl, user.RoleAdmin, user.RoleOperator), ErrRoleForbidden)
}

func TestFromAuthorization(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/routes", nil)
	_, err := FromAuthorization(r)
	require.ErrorIs(t, err, ErrNoAuthHeader)

	r.Header.Set("Authorization", "Basic abc")
	_, err = FromAuthorization(r)
	require.ErrorIs(t, err, ErrBadAuthScheme)

	r.Header.Set("Authorization", "Bearer   ")
	_, err = FromAuthorization(r)
	require.ErrorIs(t, err, ErrEmptyToken)

	r.Header.Set("Authorization", "Bearer tok-123")
	tok, err := FromAuthorization(r)
	require.NoError(t, err)
	require.Equal(t, "tok-123", tok)

	// SSE and WebSocket clients pass the token as a query parameter
	q := httptest.NewRequest("GET", "/api/v1/routes/r1/events?token=tok-456", nil)
	tok, err = FromAuthorization(q)
	require.NoError(t, err)
	require.Equal(t, "tok-456", tok)
}
