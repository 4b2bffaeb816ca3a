package jwt

import (
	"net/http"

	"dispatch/internal/domain/user"
)

// AuthMiddlewareFunc validates tokens and injects claims into the request context. Used for HTTP routes.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// extract token from Authorization header (or ?token= for stream clients)
			raw, err := FromAuthorization(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			// parse and validate token
			_, claims, err := mgr.ParseAndValidate(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			// refresh tokens never grant API access
			if claims.IsRefresh() {
				http.Error(w, "refresh token cannot be used for API access", http.StatusUnauthorized)
				return
			}

			// enforce role-based access control (RBAC)
			if len(allowedRoles) > 0 {
				if err := RoleAllowed(claims, allowedRoles...); err != nil {
					http.Error(w, err.Error(), http.StatusForbidden)
					return
				}
			}

			// inject claims into context and proceed to next handler
			ctx := InjectClaims(r.Context(), claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
