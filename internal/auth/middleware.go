// internal/auth/middleware.go
// Tokens are issued by the main marketplace backend; this service only
// verifies them against the shared secret.

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rentora/rentora-notifications/internal/common/utils"
)

// Middleware provides authentication middleware
type Middleware struct {
	secret string
}

// NewMiddleware creates an auth middleware with the shared JWT secret
func NewMiddleware(secret string) *Middleware {
	return &Middleware{secret: secret}
}

// Authenticate verifies the bearer token and adds user information to
// the request context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		claims, err := utils.ValidateJWT(token, m.secret)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if claims.Type != "access" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token type")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "email", claims.Email)
		ctx = context.WithValue(ctx, "role", claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin allows only admin tokens through. Must run after
// Authenticate.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := r.Context().Value("role").(string)
		if !ok || role != "admin" {
			utils.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken reads a "Bearer <token>" Authorization header
func (m *Middleware) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// GetUserIDFromContext extracts user ID from request context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value("userID").(int64)
	return userID, ok
}

// GetRoleFromContext extracts the user role from request context
func GetRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value("role").(string)
	return role, ok
}
