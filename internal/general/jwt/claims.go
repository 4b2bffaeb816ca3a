package jwt

import (
	"time"

	"dispatch/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates access tokens from refresh tokens.
const TypeRefresh = "refresh"

// Claims defines our canonical JWT claims payload.
type Claims struct {
	Email     string    `json:"email,omitempty"` // access tokens only
	Role      user.Role `json:"role,omitempty"`  // user role for RBAC (ADMIN/OPERATOR/DRIVER)
	TokenType string    `json:"type,omitempty"`  // "refresh" for refresh tokens, empty for access
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewAccessClaims constructs the short-lived access token claims.
func NewAccessClaims(userID, email string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// NewRefreshClaims constructs the long-lived refresh token claims. The jti
// makes every issued token distinct even within the same second, so a
// rotation never mints a byte-identical replacement for the token it revokes.
func NewRefreshClaims(userID string, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		TokenType: TypeRefresh,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// IsRefresh reports whether the claims came from a refresh token.
func (c *Claims) IsRefresh() bool {
	return c.TokenType == TypeRefresh
}
