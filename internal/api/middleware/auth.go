package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/checkout-engine/internal/auth"
)

type contextKey string

const UserContextKey contextKey = "user"

// GuestTokenHeader carries the raw token proving ownership of an anonymous
// cart.
const GuestTokenHeader = "X-Guest-Token"

// ExtractToken extracts a JWT from cookie or Authorization header.
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// OptionalAuth adds user claims to the request context when a valid token
// is present but never rejects the request: checkout works for guests too,
// and ownership is enforced against the cart, not the route.
func OptionalAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := jwtService.ValidateAccessToken(tokenString); err == nil {
					ctx := context.WithValue(r.Context(), UserContextKey, claims)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID returns the authenticated user id, or empty for anonymous callers.
func UserID(r *http.Request) string {
	if claims, ok := r.Context().Value(UserContextKey).(*auth.Claims); ok {
		return claims.UserID
	}
	return ""
}

// GuestToken returns the guest cart token header, if any.
func GuestToken(r *http.Request) string {
	return r.Header.Get(GuestTokenHeader)
}
