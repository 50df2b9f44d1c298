package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// contextKeyUsername stores the authenticated admin's username.
const contextKeyUsername contextKey = "username"

// Username returns the authenticated username from a request context, or
// "" when the request did not pass through Middleware.
func Username(ctx context.Context) string {
	u, _ := ctx.Value(contextKeyUsername).(string)
	return u
}

// ExtractBearerToken pulls the token out of an Authorization header.
// Returns "" when the header is missing or not a bearer scheme.
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Middleware guards admin routes: it verifies the bearer token and stores
// the username in the request context. Unauthenticated requests get a 401
// JSON body in the API's error shape.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		claims, err := s.Verify(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyUsername, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"` + msg + `","code":"UNAUTHORIZED"}`))
}
