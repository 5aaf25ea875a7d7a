package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	emailKey  contextKeyType = "email"
)

// Claims represents the identity extracted from a bearer credential.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// TokenValidator validates a bearer token and returns the caller's claims.
// The concrete implementation is injected so this package stays free of any
// particular token format.
type TokenValidator func(token string) (*Claims, error)

// Auth validates bearer tokens and injects the caller's identity into the
// request context. Missing or invalid credentials produce a 401 without
// invoking the next handler.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := validate(parts[1])
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// EmailFromContext extracts the authenticated user's email from the request context.
func EmailFromContext(ctx context.Context) string {
	if email, ok := ctx.Value(emailKey).(string); ok {
		return email
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}
